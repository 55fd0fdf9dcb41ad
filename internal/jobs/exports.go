package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castafiore/tunebridge/internal/catalog"
	"github.com/castafiore/tunebridge/internal/codec"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/repositories"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ExportController renders stored playlists into text formats.
//
// The rendered bytes are persisted on the job so DownloadExport serves
// exactly what the export produced, never a re-render of data that may
// have changed since.
type ExportController struct {
	jobs      *repositories.ExportJobRepository
	playlists *repositories.PlaylistRepository
	enricher  catalog.Adapter // optional metadata refresher, may be nil
	logger    *log.Logger
}

// NewExportController creates an ExportController. The enricher refreshes
// song metadata from its platform before rendering and may be nil.
func NewExportController(jobRepo *repositories.ExportJobRepository, playlists *repositories.PlaylistRepository, enricher catalog.Adapter, logger *log.Logger) *ExportController {
	return &ExportController{
		jobs:      jobRepo,
		playlists: playlists,
		enricher:  enricher,
		logger:    logger,
	}
}

// ExportPlaylist renders a stored playlist into the named format and
// persists the result on a completed export job.
//
// Metadata enrichment is best-effort: a failing catalog lookup degrades
// to the stored metadata and never fails the export.
func (c *ExportController) ExportPlaylist(ctx context.Context, progress chan<- ProgressUpdate, ownerID, playlistID, formatName string) (*models.ExportJob, error) {
	format, err := codec.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	record, err := c.playlists.Get(playlistID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	job := models.NewExportJob(0, ownerID, string(format), playlistID)
	if err := c.jobs.Create(job); err != nil {
		return nil, err
	}

	logger := shared.JobLogger(c.logger, job.ID())
	logger.Info("export started", "playlist", record.Name, "format", format)

	now := time.Now()
	job.SetStatus(models.JobStatusProcessing)
	job.SetStartedAt(&now)
	if err := c.jobs.Update(job); err != nil {
		return job, err
	}

	songs, err := c.playlists.Songs(playlistID)
	if err != nil {
		return job, c.fail(job, logger, err)
	}
	sendProgress(progress, fetchPlaylistUpdate(record.Name, len(songs)))

	songs = c.enrich(ctx, logger, progress, songs)

	playlist := models.Playlist{
		Name:        record.Name,
		Description: record.Description,
		Creator:     record.Creator,
		Platform:    record.Platform,
		Songs:       songs,
	}

	total := 0
	for _, song := range songs {
		total += song.Duration
	}
	sendProgress(progress, renderPlaylistUpdate(format, total))

	data, err := codec.Render(playlist, format)
	if err != nil {
		return job, c.fail(job, logger, err)
	}

	completed := time.Now()
	job.SetExportedData(data)
	job.SetFilename(codec.Filename(playlist, format))
	job.SetStatus(models.JobStatusCompleted)
	job.SetCompletedAt(&completed)
	if err := c.jobs.Update(job); err != nil {
		return job, err
	}

	logger.Info("export completed", "songs", len(songs), "filename", job.Filename(), "bytes", len(data))
	return job, nil
}

// DownloadExport returns the stored filename and rendered bytes of a
// completed export.
func (c *ExportController) DownloadExport(jobID string) (string, []byte, error) {
	job, err := c.jobs.Get(jobID)
	if err != nil {
		return "", nil, err
	}
	if job.Status() != models.JobStatusCompleted || job.ExportedData() == "" {
		return "", nil, fmt.Errorf("%w: export job %s has no rendered data", shared.ErrInvalidInput, jobID)
	}
	return job.Filename(), []byte(job.ExportedData()), nil
}

// GetJob retrieves an export job by id.
func (c *ExportController) GetJob(jobID string) (*models.ExportJob, error) {
	return c.jobs.Get(jobID)
}

// ListJobs retrieves an owner's export jobs, optionally filtered by status.
func (c *ExportController) ListJobs(ownerID string, status models.JobStatus) ([]*models.ExportJob, error) {
	return c.jobs.List(map[string]any{"owner_id": ownerID, "status": string(status)})
}

// enrich refreshes song metadata from the enricher's platform. Songs not
// resolved on that platform pass through untouched, as does everything
// when the batch lookup fails.
func (c *ExportController) enrich(ctx context.Context, logger *log.Logger, progress chan<- ProgressUpdate, songs []models.Song) []models.Song {
	if c.enricher == nil {
		return songs
	}

	platform := c.enricher.Platform()
	var ids []string
	for _, song := range songs {
		if song.Platform == platform && song.PlatformID != "" {
			ids = append(ids, song.PlatformID)
		}
	}
	if len(ids) == 0 {
		return songs
	}
	sendProgress(progress, enrichSongsUpdate(len(ids)))

	fresh, err := c.enricher.GetByID(ctx, ids)
	if err != nil {
		logger.Warn("metadata refresh failed, exporting stored metadata", "platform", platform, "error", err)
		return songs
	}

	byID := make(map[string]models.Song, len(fresh))
	for _, song := range fresh {
		byID[song.PlatformID] = song
	}

	for i, song := range songs {
		if song.Platform != platform {
			continue
		}
		refreshed, ok := byID[song.PlatformID]
		if !ok {
			continue
		}
		if refreshed.Album != "" {
			songs[i].Album = refreshed.Album
		}
		if refreshed.Duration > 0 {
			songs[i].Duration = refreshed.Duration
		}
		if refreshed.ISRC != "" {
			songs[i].ISRC = refreshed.ISRC
		}
		if refreshed.URL != "" {
			songs[i].URL = refreshed.URL
		}
	}
	return songs
}

func (c *ExportController) fail(job *models.ExportJob, logger *log.Logger, cause error) error {
	now := time.Now()
	job.SetStatus(models.JobStatusFailed)
	job.SetErrorMessage(cause.Error())
	job.SetCompletedAt(&now)
	if err := c.jobs.Update(job); err != nil {
		logger.Error("failed to persist job failure", "error", err)
	}
	logger.Error("export failed", "error", cause)
	return cause
}
