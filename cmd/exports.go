package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/castafiore/tunebridge/internal/jobs"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ExportRun renders a stored playlist into an interchange format and
// writes the result to disk.
func (r *Runner) ExportRun(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("playlist")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	progressCh := make(chan jobs.ProgressUpdate, 50)
	go r.renderExportProgress(progressCh)

	job, err := p.exports.ExportPlaylist(ctx, progressCh, cmd.String("owner"), playlistID, cmd.String("format"))
	close(progressCh)

	if err != nil {
		return err
	}

	outputPath := cmd.String("output")
	if outputPath == "" {
		outputPath = job.Filename()
	}

	filename, data, err := p.exports.DownloadExport(job.ID())
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = filename
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	r.writePlain("\n✓ Exported playlist %s as %s\n", playlistID, job.Format())
	r.writePlain("Saved to: %s (%d bytes)\n", outputPath, len(data))

	return nil
}

// ExportDownload writes a completed export job's rendered data to disk.
func (r *Runner) ExportDownload(ctx context.Context, cmd *cli.Command) error {
	jobID := cmd.StringArg("job")
	if jobID == "" {
		return fmt.Errorf("%w: export job id", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	filename, data, err := p.exports.DownloadExport(jobID)
	if err != nil {
		return err
	}

	outputPath := cmd.String("output")
	if outputPath == "" {
		outputPath = filename
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	r.writePlain("Saved to: %s (%d bytes)\n", outputPath, len(data))
	return nil
}

// ExportList prints recent export jobs, optionally filtered by status.
func (r *Runner) ExportList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	list, err := p.exports.ListJobs(cmd.String("owner"), models.JobStatus(cmd.String("status")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]map[string]any, 0, len(list))
		for _, job := range list {
			views = append(views, exportJobView(job))
		}
		return r.writeJSON(views, true)
	}

	if len(list) == 0 {
		r.writePlain("No export jobs found\n")
		return nil
	}

	for _, job := range list {
		r.writePlain("%s  %-10s  %-6s  playlist %s  %s\n",
			job.ID(), job.Status(), job.Format(), job.SourcePlaylistID(), job.Filename())
	}

	return nil
}

func (r *Runner) renderExportProgress(progressCh <-chan jobs.ProgressUpdate) {
	for update := range progressCh {
		switch update.Phase {
		case jobs.FetchPlaylist:
			r.writePlain("📥 %s\n", update.Message)
		case jobs.EnrichSongs:
			r.writePlain("🔍 %s\n", update.Message)
		case jobs.RenderPlaylist:
			r.writePlain("📝 %s\n", update.Message)
		}
	}
}

func exportJobView(job *models.ExportJob) map[string]any {
	return map[string]any{
		"id":                 job.ID(),
		"status":             job.Status(),
		"format":             job.Format(),
		"source_playlist_id": job.SourcePlaylistID(),
		"filename":           job.Filename(),
		"error_message":      job.ErrorMessage(),
	}
}

func exportCommand(r *Runner) *cli.Command {
	ownerFlag := &cli.StringFlag{
		Name:  "owner",
		Usage: "Owner scope for jobs and playlists",
		Value: defaultOwner,
	}

	return &cli.Command{
		Name:  "export",
		Usage: "Export playlists to interchange files",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Render a playlist to a file",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (json, csv, m3u8, xspf)",
						Value: "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path; derived from the playlist name when omitted",
					},
				},
				Action: r.ExportRun,
			},
			{
				Name:      "download",
				Usage:     "Write a completed export job's data to disk",
				Arguments: []cli.Argument{&cli.StringArg{Name: "job"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path; uses the job's stored filename when omitted",
					},
				},
				Action: r.ExportDownload,
			},
			{
				Name:  "list",
				Usage: "List export jobs",
				Flags: []cli.Flag{
					ownerFlag,
					&cli.BoolFlag{Name: "json", Usage: "Emit JSON instead of plain text"},
					&cli.StringFlag{Name: "status", Usage: "Filter by job status"},
				},
				Action: r.ExportList,
			},
		},
	}
}
