package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/castafiore/tunebridge/internal/download"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// DownloadQueue queues a stored playlist's songs for acquisition across
// the configured back-ends.
func (r *Runner) DownloadQueue(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("playlist")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	service, err := parseDownloadService(cmd.String("service"))
	if err != nil {
		return err
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	songs, err := p.playlists.Songs(playlistID)
	if err != nil {
		return err
	}

	if picked := cmd.String("song"); picked != "" {
		index, err := strconv.Atoi(picked)
		if err != nil || index < 0 || index >= len(songs) {
			return fmt.Errorf("%w: song index %q out of range", shared.ErrInvalidInput, picked)
		}
		songs = songs[index : index+1]
	}

	owner := cmd.String("owner")

	var job *models.DownloadJob
	if len(songs) == 1 {
		job, err = p.downloads.QueueSingle(ctx, owner, songs[0], service)
	} else {
		prefs := download.Preferences{
			PreferCatalogForAlbums: r.config.Downloads.PreferCatalogForAlbums || cmd.Bool("prefer-catalog"),
			DefaultService:         service,
		}
		job, err = p.downloads.QueueBatch(ctx, owner, songs, prefs)
	}
	if err != nil {
		return err
	}

	r.writePlain("Queued %d songs as job %s (%s)\n", job.TotalItems(), job.ID(), job.Status())
	return nil
}

// DownloadStatus polls the back-ends and prints current job state, or a
// combined snapshot of both back-end queues when no job is given.
func (r *Runner) DownloadStatus(ctx context.Context, cmd *cli.Command) error {
	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	jobID := cmd.StringArg("job")
	if jobID == "" {
		items, err := p.downloads.Snapshot(ctx)
		if err != nil {
			return err
		}

		if cmd.Bool("json") {
			return r.writeJSON(items, true)
		}

		if len(items) == 0 {
			r.writePlain("Both back-end queues are empty\n")
			return nil
		}
		for _, item := range items {
			r.writePlain("%-22s  %-12s  %5.1f%%  %s\n", item.Service, item.Status, item.Progress, item.Title)
		}
		return nil
	}

	job, err := p.downloads.GetQueueStatus(ctx, jobID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(downloadJobView(job), true)
	}

	r.writeDownloadSummary(job)
	return nil
}

// DownloadReport prints the per-service completion report for a job,
// including files that need manual organization.
func (r *Runner) DownloadReport(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	if jobID == "" {
		return fmt.Errorf("%w: download job id", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	job, err := p.downloads.GetJob(jobID)
	if err != nil {
		return err
	}

	report := download.GenerateReport(job.Queue())

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader(fmt.Sprintf("Download report %s", job.ID()))
	for service, counts := range report.ByService {
		r.writePlain("%-22s  %d total, %d completed, %d failed, %d active\n",
			service, counts.Total, counts.Completed, counts.Failed, counts.Active)
	}

	if len(report.NeedsOrganization) > 0 {
		r.writePlainln("Needs manual organization:")
		for _, item := range report.NeedsOrganization {
			path := item.DownloadedPath
			if path == "" {
				path = fmt.Sprintf("%s - %s", item.Artist, item.Title)
			}
			r.writePlain("  - %s\n", path)
		}
	}

	return nil
}

// DownloadCancel cancels one queued item within a download job.
func (r *Runner) DownloadCancel(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	itemID := cmd.String("item")
	if jobID == "" || itemID == "" {
		return fmt.Errorf("%w: download job id and --item", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	job, err := p.downloads.Cancel(ctx, jobID, itemID)
	if err != nil {
		return err
	}

	r.writePlain("Job %s is now %s\n", job.ID(), job.Status())
	return nil
}

// DownloadOrganized marks a fetched file as manually organized.
func (r *Runner) DownloadOrganized(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	itemID := cmd.String("item")
	if jobID == "" || itemID == "" {
		return fmt.Errorf("%w: download job id and --item", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	job, err := p.downloads.MarkOrganized(jobID, itemID)
	if err != nil {
		return err
	}

	remaining := 0
	if pending := job.PendingOrganization(); pending != nil {
		remaining = len(pending.Files)
	}
	r.writePlain("Marked organized; %d files still pending\n", remaining)
	return nil
}

// DownloadList prints recent download jobs, optionally filtered by status.
func (r *Runner) DownloadList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	list, err := p.downloads.ListJobs(cmd.String("owner"), models.JobStatus(cmd.String("status")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]map[string]any, 0, len(list))
		for _, job := range list {
			views = append(views, downloadJobView(job))
		}
		return r.writeJSON(views, true)
	}

	if len(list) == 0 {
		r.writePlain("No download jobs found\n")
		return nil
	}

	for _, job := range list {
		r.writePlain("%s  %-10s  %d/%d completed, %d failed\n",
			job.ID(), job.Status(), job.CompletedItems(), job.TotalItems(), job.FailedItems())
	}

	return nil
}

func (r *Runner) writeDownloadSummary(job *models.DownloadJob) {
	r.writePlainHeader(fmt.Sprintf("Download %s (%s)", job.ID(), job.Status()))
	r.writePlain("Items: %d total, %d completed, %d failed\n\n",
		job.TotalItems(), job.CompletedItems(), job.FailedItems())

	for _, item := range job.Queue() {
		r.writePlain("%s  %-12s  %-22s  %s - %s", item.ID, item.Status, item.Service, item.Artist, item.Title)
		if item.Error != "" {
			r.writePlain("  (%s)", item.Error)
		}
		r.writePlain("\n")
	}

	if pending := job.PendingOrganization(); pending != nil {
		r.writePlainln("Needs manual organization:")
		for _, file := range pending.Files {
			r.writePlain("  - %s\n", file)
		}
	}
}

func parseDownloadService(name string) (models.DownloadService, error) {
	switch name {
	case "":
		return "", nil
	case string(models.ServiceCatalogManager):
		return models.ServiceCatalogManager, nil
	case string(models.ServiceTrackFetcher):
		return models.ServiceTrackFetcher, nil
	default:
		return "", fmt.Errorf("%w: unknown service %q (must be %s or %s)",
			shared.ErrInvalidInput, name, models.ServiceCatalogManager, models.ServiceTrackFetcher)
	}
}

func downloadJobView(job *models.DownloadJob) map[string]any {
	return map[string]any{
		"id":                   job.ID(),
		"status":               job.Status(),
		"service":              job.Service(),
		"total_items":          job.TotalItems(),
		"completed_items":      job.CompletedItems(),
		"failed_items":         job.FailedItems(),
		"queue":                job.Queue(),
		"pending_organization": job.PendingOrganization(),
		"error_message":        job.ErrorMessage(),
	}
}

func downloadCommand(r *Runner) *cli.Command {
	ownerFlag := &cli.StringFlag{
		Name:  "owner",
		Usage: "Owner scope for jobs",
		Value: defaultOwner,
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Emit JSON instead of plain text",
	}
	itemFlag := &cli.StringFlag{
		Name:  "item",
		Usage: "Queue item id within the job",
	}

	return &cli.Command{
		Name:  "download",
		Usage: "Acquire songs through the configured back-ends",
		Commands: []*cli.Command{
			{
				Name:      "queue",
				Usage:     "Queue a playlist's songs for download",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{
						Name:  "service",
						Usage: "Force a back-end (catalog-manager or single-track-fetcher)",
					},
					&cli.StringFlag{
						Name:  "song",
						Usage: "Queue only the song at this index",
					},
					&cli.BoolFlag{
						Name:  "prefer-catalog",
						Usage: "Route songs with album metadata to the catalog manager",
					},
				},
				Action: r.DownloadQueue,
			},
			{
				Name:      "status",
				Usage:     "Show job progress, or both back-end queues when no job is given",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags:     []cli.Flag{jsonFlag},
				Action:    r.DownloadStatus,
			},
			{
				Name:      "report",
				Usage:     "Per-service completion report for a job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags:     []cli.Flag{jsonFlag},
				Action:    r.DownloadReport,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel one queued item",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags:     []cli.Flag{itemFlag},
				Action:    r.DownloadCancel,
			},
			{
				Name:      "organized",
				Usage:     "Mark a fetched file as manually organized",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags:     []cli.Flag{itemFlag},
				Action:    r.DownloadOrganized,
			},
			{
				Name:  "list",
				Usage: "List download jobs",
				Flags: []cli.Flag{
					ownerFlag,
					jsonFlag,
					&cli.StringFlag{Name: "status", Usage: "Filter by job status"},
				},
				Action: r.DownloadList,
			},
		},
	}
}
