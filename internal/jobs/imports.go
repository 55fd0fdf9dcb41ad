// package jobs implements the import and export controllers that drive
// playlists through the interchange pipeline.
//
// Controllers own the persisted job records: every durable progress step
// is written back through the repositories so a job can be polled, and a
// half-reviewed import survives the request that started it. Operations
// emit progress updates via channels for non-blocking status reporting
// to CLI/API layers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/castafiore/tunebridge/internal/codec"
	"github.com/castafiore/tunebridge/internal/match"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/repositories"
	"github.com/castafiore/tunebridge/internal/shared"
)

const defaultConcurrency = 4

// ReviewDecision resolves one pending-review song. A nil Selected skips
// the song.
type ReviewDecision struct {
	Index    int                   `json:"index"`
	Selected *models.SelectedMatch `json:"selected,omitempty"`
}

// ImportOptions tunes import controller behavior. Zero values select the
// defaults.
type ImportOptions struct {
	// Concurrency caps in-flight catalog searches per job.
	Concurrency int
	// TargetPlatform names the platform imported playlists are created on.
	TargetPlatform string
}

// ImportController runs playlist imports: parse, match, review, commit.
//
// A single controller serves all jobs; per-job state lives in the job
// record so only the controller that started a job writes to it.
type ImportController struct {
	jobs      *repositories.ImportJobRepository
	playlists *repositories.PlaylistRepository
	matcher   *match.Matcher
	logger    *log.Logger

	concurrency    int
	targetPlatform string

	mu   sync.Mutex
	runs map[string]*importRun
}

// importRun tracks one in-flight matching loop so Cancel can reach it.
// The mutex serializes job writes between workers and Cancel.
type importRun struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewImportController creates an ImportController over the given
// repositories and matcher.
func NewImportController(jobRepo *repositories.ImportJobRepository, playlists *repositories.PlaylistRepository, matcher *match.Matcher, logger *log.Logger, opts ImportOptions) *ImportController {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.TargetPlatform == "" {
		opts.TargetPlatform = "local"
	}
	return &ImportController{
		jobs:           jobRepo,
		playlists:      playlists,
		matcher:        matcher,
		logger:         logger,
		concurrency:    opts.Concurrency,
		targetPlatform: opts.TargetPlatform,
		runs:           make(map[string]*importRun),
	}
}

// StartImport parses raw playlist text, creates the import job and the
// target playlist shell, then matches every song against the catalogs.
//
// Matching runs with bounded concurrency; results land at their song's
// original position and the job is persisted after every song so a poll
// mid-run sees accurate counters. When nothing needs review the import
// commits immediately; otherwise the job stays processing until
// FinalizeReview.
func (c *ImportController) StartImport(ctx context.Context, progress chan<- ProgressUpdate, ownerID, text, filename, formatHint string) (*models.ImportJob, error) {
	parsed, format, err := c.parse(text, filename, formatHint)
	if err != nil {
		return nil, err
	}

	songs := parsed.Playlist.Songs
	job := models.NewImportJob(0, ownerID, string(format), c.targetPlatform)
	job.SetTotalSongs(len(songs))

	results := make([]models.SongMatchResult, len(songs))
	for i, song := range songs {
		results[i] = models.SongMatchResult{Song: song}
	}
	job.SetMatchResults(results)
	for _, warning := range parsed.Warnings {
		job.AddWarning("parse: " + warning)
	}

	if err := c.jobs.Create(job); err != nil {
		return nil, err
	}

	logger := shared.JobLogger(c.logger, job.ID())
	logger.Info("import started", "format", format, "songs", len(songs))
	sendProgress(progress, parseSourceUpdate(format, len(songs)))

	record, err := c.createTargetPlaylist(ownerID, parsed.Playlist, job.ID())
	if err != nil {
		return job, c.fail(job, logger, err)
	}
	job.SetTargetPlaylistID(record.ID)

	now := time.Now()
	job.SetStatus(models.JobStatusProcessing)
	job.SetStartedAt(&now)
	if err := c.jobs.Update(job); err != nil {
		return job, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &importRun{cancel: cancel}
	c.mu.Lock()
	c.runs[job.ID()] = run
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.runs, job.ID())
		c.mu.Unlock()
	}()

	sendProgress(progress, matchSongsUpdate(0, len(songs), nil))

	group := new(errgroup.Group)
	group.SetLimit(c.concurrency)
	for i := range results {
		if runCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			result, warnings := c.matcher.Match(runCtx, results[i].Song)

			run.mu.Lock()
			defer run.mu.Unlock()
			if runCtx.Err() != nil {
				// Cancelled while matching; the result is discarded.
				return nil
			}

			results[i] = result
			job.SetMatchResults(results)
			for _, warning := range warnings {
				job.AddWarning(fmt.Sprintf("%s - %s: %s", result.Song.Artist, result.Song.Title, warning))
			}
			job.RecountSongs()
			if err := c.jobs.Update(job); err != nil {
				logger.Error("failed to persist match progress", "error", err)
			}
			sendProgress(progress, matchSongsUpdate(job.ProcessedSongs(), len(songs), &result))
			return nil
		})
	}
	group.Wait()

	if runCtx.Err() != nil {
		return c.settleCancelled(job, run, logger)
	}

	if job.PendingReviewSongs() > 0 {
		sendProgress(progress, awaitReviewUpdate(job.PendingReviewSongs()))
		logger.Info("import awaiting review", "pending", job.PendingReviewSongs(), "matched", job.MatchedSongs())
		return job, nil
	}

	if err := c.commit(job, progress, logger); err != nil {
		return job, c.fail(job, logger, err)
	}
	return job, nil
}

// FinalizeReview applies review decisions and commits the import.
//
// Decisions resolve pending-review songs only; songs left unresolved are
// skipped. Calling FinalizeReview on a completed job is a no-op, and a
// partially committed earlier attempt is safe to retry because songs
// already on the playlist are skipped as duplicates.
func (c *ImportController) FinalizeReview(jobID string, decisions []ReviewDecision, progress chan<- ProgressUpdate) (*models.ImportJob, error) {
	job, err := c.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status() == models.JobStatusCompleted {
		return job, nil
	}
	if job.Status().Terminal() {
		return nil, fmt.Errorf("%w: import job %s is %s", shared.ErrJobTerminal, jobID, job.Status())
	}
	if job.ProcessedSongs() < job.TotalSongs() {
		return nil, fmt.Errorf("%w: import job %s is still matching", shared.ErrInvalidInput, jobID)
	}

	results := job.MatchResults()
	for _, decision := range decisions {
		if decision.Index < 0 || decision.Index >= len(results) {
			return nil, fmt.Errorf("%w: song index %d out of range", shared.ErrInvalidInput, decision.Index)
		}
		result := &results[decision.Index]
		if result.Status != models.MatchStatusPendingReview {
			continue
		}
		if decision.Selected == nil {
			result.Status = models.MatchStatusSkipped
			result.SelectedMatch = nil
			continue
		}
		if !candidateExists(result.Matches, *decision.Selected) {
			return nil, fmt.Errorf("%w: selection for song %d is not one of its candidates", shared.ErrInvalidInput, decision.Index)
		}
		result.SelectedMatch = decision.Selected
		result.Status = models.MatchStatusMatched
	}

	// Anything the reviewer did not resolve is skipped, never left hanging.
	for i := range results {
		if results[i].Status == models.MatchStatusPendingReview {
			results[i].Status = models.MatchStatusSkipped
			results[i].SelectedMatch = nil
		}
	}
	job.SetMatchResults(results)
	job.RecountSongs()

	logger := shared.JobLogger(c.logger, job.ID())
	if err := c.commit(job, progress, logger); err != nil {
		return job, c.fail(job, logger, err)
	}
	return job, nil
}

// Cancel stops an import job. An active matching loop is signalled and
// stops between songs; its in-flight results are discarded. Cancelling
// an already-cancelled job returns the stored job; other terminal
// states cannot be cancelled.
func (c *ImportController) Cancel(jobID string) (*models.ImportJob, error) {
	job, err := c.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status() == models.JobStatusCancelled {
		return job, nil
	}
	if job.Status().Terminal() {
		return nil, fmt.Errorf("%w: import job %s is %s", shared.ErrJobTerminal, jobID, job.Status())
	}

	c.mu.Lock()
	run := c.runs[jobID]
	c.mu.Unlock()

	if run == nil {
		return job, c.markCancelled(job)
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	run.cancel()

	// Reload under the run lock so the last worker write is not rolled back.
	job, err = c.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status().Terminal() {
		return job, nil
	}
	return job, c.markCancelled(job)
}

// GetJob retrieves an import job by id.
func (c *ImportController) GetJob(jobID string) (*models.ImportJob, error) {
	return c.jobs.Get(jobID)
}

// ListJobs retrieves an owner's import jobs, optionally filtered by status.
func (c *ImportController) ListJobs(ownerID string, status models.JobStatus) ([]*models.ImportJob, error) {
	return c.jobs.List(map[string]any{"owner_id": ownerID, "status": string(status)})
}

// parse resolves the format and parses the playlist text. An explicit
// format wins over the filename hint and content sniffing.
func (c *ImportController) parse(text, filename, formatHint string) (*codec.ParseResult, codec.Format, error) {
	if formatHint != "" {
		format, err := codec.ParseFormat(formatHint)
		if err != nil {
			return nil, "", err
		}
		result, err := codec.Parse(text, format)
		return result, format, err
	}
	return codec.ParseAuto(text, filename)
}

// createTargetPlaylist stores the playlist shell the commit phase appends
// matched songs to. A name collision gets a timestamp suffix rather than
// failing the import.
func (c *ImportController) createTargetPlaylist(ownerID string, parsed models.Playlist, jobID string) (*repositories.PlaylistRecord, error) {
	name := strings.TrimSpace(parsed.Name)
	if name == "" {
		name = "Import " + jobID[:8]
	}

	playlist := models.Playlist{
		Name:        name,
		Description: parsed.Description,
		Creator:     parsed.Creator,
		Platform:    c.targetPlatform,
	}

	record, err := c.playlists.Create(ownerID, playlist)
	if errors.Is(err, shared.ErrDuplicatePlaylist) {
		playlist.Name = fmt.Sprintf("%s (%s)", name, time.Now().Format("2006-01-02 15:04"))
		record, err = c.playlists.Create(ownerID, playlist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create target playlist: %w", err)
	}
	return record, nil
}

// commit appends every matched song to the target playlist in original
// order and completes the job. Songs already present are skipped
// silently so a retried commit never duplicates them.
func (c *ImportController) commit(job *models.ImportJob, progress chan<- ProgressUpdate, logger *log.Logger) error {
	results := job.MatchResults()
	duplicates := 0

	for i, result := range results {
		if result.Status != models.MatchStatusMatched || result.SelectedMatch == nil {
			continue
		}
		song, ok := resolveSelection(result)
		if !ok {
			job.AddWarning(fmt.Sprintf("song %d: selected match is not among its candidates", i+1))
			continue
		}
		if _, err := c.playlists.AppendSong(job.TargetPlaylistID(), song); err != nil {
			if errors.Is(err, shared.ErrDuplicateSong) {
				duplicates++
				continue
			}
			return err
		}
		sendProgress(progress, commitSongsUpdate(i+1, len(results), song))
	}

	if duplicates > 0 {
		job.AddWarning(fmt.Sprintf("%d duplicate songs skipped", duplicates))
	}

	now := time.Now()
	job.SetStatus(models.JobStatusCompleted)
	job.SetCompletedAt(&now)
	if err := c.jobs.Update(job); err != nil {
		return err
	}

	logger.Info("import completed",
		"matched", job.MatchedSongs(),
		"unmatched", job.UnmatchedSongs(),
		"duplicates", duplicates,
	)
	return nil
}

// settleCancelled persists the cancelled state after the matching loop
// observes cancellation. Cancel may have already written it.
func (c *ImportController) settleCancelled(job *models.ImportJob, run *importRun, logger *log.Logger) (*models.ImportJob, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	fresh, err := c.jobs.Get(job.ID())
	if err != nil {
		return nil, err
	}
	if !fresh.Status().Terminal() {
		if err := c.markCancelled(fresh); err != nil {
			return fresh, err
		}
	}
	logger.Warn("import cancelled", "processed", fresh.ProcessedSongs(), "total", fresh.TotalSongs())
	return fresh, nil
}

func (c *ImportController) markCancelled(job *models.ImportJob) error {
	now := time.Now()
	job.SetStatus(models.JobStatusCancelled)
	job.SetCompletedAt(&now)
	return c.jobs.Update(job)
}

// fail records a terminal failure on the job and passes the cause through.
func (c *ImportController) fail(job *models.ImportJob, logger *log.Logger, cause error) error {
	now := time.Now()
	job.SetStatus(models.JobStatusFailed)
	job.SetErrorMessage(cause.Error())
	job.SetCompletedAt(&now)
	if err := c.jobs.Update(job); err != nil {
		logger.Error("failed to persist job failure", "error", err)
	}
	logger.Error("import failed", "error", cause)
	return cause
}

// resolveSelection binds a song to its accepted candidate's platform
// identity. Reports false when the selection no longer names a candidate.
func resolveSelection(result models.SongMatchResult) (models.Song, bool) {
	for _, candidate := range result.Matches {
		if candidate.Platform == result.SelectedMatch.Platform && candidate.PlatformID == result.SelectedMatch.PlatformID {
			return result.Song.Resolved(candidate.Platform, candidate.PlatformID, candidate.URL), true
		}
	}
	return models.Song{}, false
}

func candidateExists(candidates []models.MatchCandidate, selected models.SelectedMatch) bool {
	for _, candidate := range candidates {
		if candidate.Platform == selected.Platform && candidate.PlatformID == selected.PlatformID {
			return true
		}
	}
	return false
}
