package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/castafiore/tunebridge/internal/jobs"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ImportRun parses a playlist file, matches every song against the
// configured catalogs and commits the matched songs to a new playlist.
// Songs the matcher cannot settle are left for 'import review'.
func (r *Runner) ImportRun(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: playlist file path", shared.ErrMissingArgument)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read playlist file: %w", err)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	r.writePlain("Importing %s...\n\n", path)

	progressCh := make(chan jobs.ProgressUpdate, 50)
	go r.renderImportProgress(progressCh)

	job, err := p.imports.StartImport(ctx, progressCh, cmd.String("owner"), string(data), filepath.Base(path), cmd.String("format"))
	close(progressCh)

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writeImportSummary(job)

	return nil
}

// ImportReview applies review decisions to a job awaiting human input
// and commits the playlist. Pending songs without a decision are skipped.
func (r *Runner) ImportReview(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	if jobID == "" {
		return fmt.Errorf("%w: import job id", shared.ErrMissingArgument)
	}

	decisions, err := parseReviewDecisions(cmd.StringSlice("select"), cmd.StringSlice("skip"))
	if err != nil {
		return err
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	progressCh := make(chan jobs.ProgressUpdate, 50)
	go r.renderImportProgress(progressCh)

	job, err := p.imports.FinalizeReview(jobID, decisions, progressCh)
	close(progressCh)

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writeImportSummary(job)

	return nil
}

// ImportShow prints the current state of an import job, including the
// candidate lists for songs awaiting review.
func (r *Runner) ImportShow(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	if jobID == "" {
		return fmt.Errorf("%w: import job id", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	job, err := p.imports.GetJob(jobID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(importJobView(job), true)
	}

	r.writeImportSummary(job)
	return nil
}

// ImportCancel requests cancellation of a running import job.
func (r *Runner) ImportCancel(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	if jobID == "" {
		return fmt.Errorf("%w: import job id", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	job, err := p.imports.Cancel(jobID)
	if err != nil {
		return err
	}

	r.writePlain("Job %s is now %s\n", job.ID(), job.Status())
	return nil
}

// ImportList prints recent import jobs, optionally filtered by status.
func (r *Runner) ImportList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	list, err := p.imports.ListJobs(cmd.String("owner"), models.JobStatus(cmd.String("status")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]map[string]any, 0, len(list))
		for _, job := range list {
			views = append(views, importJobView(job))
		}
		return r.writeJSON(views, true)
	}

	if len(list) == 0 {
		r.writePlain("No import jobs found\n")
		return nil
	}

	for _, job := range list {
		r.writePlain("%s  %-10s  %-6s  %d/%d songs matched\n",
			job.ID(), job.Status(), job.Format(), job.MatchedSongs(), job.TotalSongs())
	}

	return nil
}

func (r *Runner) renderImportProgress(progressCh <-chan jobs.ProgressUpdate) {
	for update := range progressCh {
		switch update.Phase {
		case jobs.ParseSource:
			r.writePlain("📥 %s\n", update.Message)
		case jobs.MatchSongs:
			r.writePlain("   %s\n", update.Message)
		case jobs.AwaitReview:
			r.writePlain("\n⏸  %s\n", update.Message)
		case jobs.CommitSongs:
			r.writePlain("📝 %s\n", update.Message)
		}
	}
}

func (r *Runner) writeImportSummary(job *models.ImportJob) {
	r.writePlainHeader(fmt.Sprintf("Import %s (%s)", job.ID(), job.Status()))
	r.writePlain("Format: %s\n", job.Format())
	r.writePlain("Songs: %d total, %d matched, %d unmatched, %d pending review\n",
		job.TotalSongs(), job.MatchedSongs(), job.UnmatchedSongs(), job.PendingReviewSongs())

	if job.TargetPlaylistID() != "" {
		r.writePlain("Target playlist: %s\n", job.TargetPlaylistID())
	}
	if job.ErrorMessage() != "" {
		r.writePlain("Error: %s\n", job.ErrorMessage())
	}

	if warnings := job.Warnings(); len(warnings) > 0 {
		r.writePlainln("Warnings:")
		for _, warning := range warnings {
			r.writePlain("  - %s\n", warning)
		}
	}

	if job.PendingReviewSongs() > 0 {
		r.writePlainln("Songs awaiting review:")
		for i, result := range job.MatchResults() {
			if result.Status != models.MatchStatusPendingReview {
				continue
			}
			r.writePlain("  [%d] %s - %s\n", i, result.Song.Artist, result.Song.Title)
			for _, candidate := range result.Matches {
				r.writePlain("      %3d%%  %s:%s  %s - %s\n",
					candidate.MatchScore, candidate.Platform, candidate.PlatformID, candidate.Artist, candidate.Title)
			}
		}
		r.writePlain("\nResolve with: tunebridge import review %s --select INDEX=PLATFORM:ID [--skip INDEX]\n", job.ID())
	}
}

// parseReviewDecisions converts --select INDEX=PLATFORM:ID and --skip
// INDEX flags into review decisions.
func parseReviewDecisions(selections, skips []string) ([]jobs.ReviewDecision, error) {
	decisions := make([]jobs.ReviewDecision, 0, len(selections)+len(skips))

	for _, entry := range selections {
		indexPart, candidate, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: selection %q must be INDEX=PLATFORM:ID", shared.ErrInvalidInput, entry)
		}
		index, err := strconv.Atoi(indexPart)
		if err != nil {
			return nil, fmt.Errorf("%w: selection index %q is not a number", shared.ErrInvalidInput, indexPart)
		}
		platform, platformID, ok := strings.Cut(candidate, ":")
		if !ok || platform == "" || platformID == "" {
			return nil, fmt.Errorf("%w: selection %q must name PLATFORM:ID", shared.ErrInvalidInput, entry)
		}
		decisions = append(decisions, jobs.ReviewDecision{
			Index:    index,
			Selected: &models.SelectedMatch{Platform: platform, PlatformID: platformID},
		})
	}

	for _, entry := range skips {
		index, err := strconv.Atoi(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: skip index %q is not a number", shared.ErrInvalidInput, entry)
		}
		decisions = append(decisions, jobs.ReviewDecision{Index: index})
	}

	return decisions, nil
}

func importJobView(job *models.ImportJob) map[string]any {
	return map[string]any{
		"id":                   job.ID(),
		"status":               job.Status(),
		"format":               job.Format(),
		"target_platform":      job.TargetPlatform(),
		"target_playlist_id":   job.TargetPlaylistID(),
		"total_songs":          job.TotalSongs(),
		"processed_songs":      job.ProcessedSongs(),
		"matched_songs":        job.MatchedSongs(),
		"unmatched_songs":      job.UnmatchedSongs(),
		"pending_review_songs": job.PendingReviewSongs(),
		"match_results":        job.MatchResults(),
		"warnings":             job.Warnings(),
		"error_message":        job.ErrorMessage(),
	}
}

func importCommand(r *Runner) *cli.Command {
	ownerFlag := &cli.StringFlag{
		Name:  "owner",
		Usage: "Owner scope for jobs and playlists",
		Value: defaultOwner,
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Emit JSON instead of plain text",
	}

	return &cli.Command{
		Name:  "import",
		Usage: "Import playlists from files",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Parse and match a playlist file",
				Arguments: []cli.Argument{&cli.StringArg{Name: "file"}},
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{
						Name:  "format",
						Usage: "Playlist format (json, csv, m3u8, xspf); detected when omitted",
					},
				},
				Action: r.ImportRun,
			},
			{
				Name:      "review",
				Usage:     "Resolve songs awaiting review and commit the playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "select",
						Usage: "Accept a candidate as INDEX=PLATFORM:ID (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "skip",
						Usage: "Skip the song at INDEX (repeatable)",
					},
				},
				Action: r.ImportReview,
			},
			{
				Name:      "show",
				Usage:     "Show an import job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags:     []cli.Flag{jsonFlag},
				Action:    r.ImportShow,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a running import job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Action:    r.ImportCancel,
			},
			{
				Name:  "list",
				Usage: "List import jobs",
				Flags: []cli.Flag{
					ownerFlag,
					jsonFlag,
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by job status",
					},
				},
				Action: r.ImportList,
			},
		},
	}
}
