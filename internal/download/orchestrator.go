package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/repositories"
	"github.com/castafiore/tunebridge/internal/shared"
)

// Back-end request-size limits. Dispatch persists the job after each
// chunk so a crash mid-batch loses at most one chunk of bookkeeping.
const (
	managerChunkSize = 25
	fetcherChunkSize = 10
)

// Preferences steer per-item routing.
type Preferences struct {
	// PreferCatalogForAlbums routes songs with album context to the
	// catalog manager instead of the single-track fetcher.
	PreferCatalogForAlbums bool
	// DefaultService receives everything the album preference does not claim.
	DefaultService models.DownloadService
}

// Orchestrator routes download requests to the two back-ends and tracks
// their progress on persisted download jobs.
type Orchestrator struct {
	jobs    *repositories.DownloadJobRepository
	manager ManagerClient
	fetcher FetcherClient
	logger  *log.Logger
	prefs   Preferences
}

// NewOrchestrator creates an Orchestrator with the given back-end
// clients and default routing preferences.
func NewOrchestrator(jobRepo *repositories.DownloadJobRepository, manager ManagerClient, fetcher FetcherClient, logger *log.Logger, prefs Preferences) *Orchestrator {
	if prefs.DefaultService == "" {
		prefs.DefaultService = models.ServiceTrackFetcher
	}
	return &Orchestrator{
		jobs:    jobRepo,
		manager: manager,
		fetcher: fetcher,
		logger:  logger,
		prefs:   prefs,
	}
}

// QueueSingle queues one song for download on an explicit service, or on
// the routed service when service is empty.
func (o *Orchestrator) QueueSingle(ctx context.Context, ownerID string, song models.Song, service models.DownloadService) (*models.DownloadJob, error) {
	if service == "" {
		service = o.route(song, o.prefs)
	}
	return o.queue(ctx, ownerID, service, []models.DownloadQueueItem{buildItem(song, service)})
}

// QueueBatch queues songs for download, routing each item independently
// per the preferences. A batch may mix back-ends.
func (o *Orchestrator) QueueBatch(ctx context.Context, ownerID string, songs []models.Song, prefs Preferences) (*models.DownloadJob, error) {
	if prefs.DefaultService == "" {
		prefs.DefaultService = o.prefs.DefaultService
	}

	items := make([]models.DownloadQueueItem, 0, len(songs))
	for _, song := range songs {
		items = append(items, buildItem(song, o.route(song, prefs)))
	}
	return o.queue(ctx, ownerID, prefs.DefaultService, items)
}

// GetQueueStatus refreshes a job's queue from both back-ends and returns
// the updated job. Terminal jobs return their stored state untouched.
func (o *Orchestrator) GetQueueStatus(ctx context.Context, jobID string) (*models.DownloadJob, error) {
	job, err := o.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status().Terminal() {
		return job, nil
	}

	remote, err := o.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]RemoteItem, len(remote))
	for _, item := range remote {
		byID[item.ServiceJobID] = item
	}

	queue := job.Queue()
	for i := range queue {
		item := &queue[i]
		if item.ServiceJobID == "" || terminalItem(item.Status) {
			continue
		}
		live, found := byID[item.ServiceJobID]
		if !found {
			continue
		}
		item.Status = live.Status
		item.Progress = live.Progress
		if live.Path != "" {
			item.DownloadedPath = live.Path
		}
		if live.Error != "" {
			item.Error = live.Error
		}
	}
	job.SetQueue(queue)
	job.SetPendingOrganization(pendingOrganization(queue))
	o.settle(job)

	if err := o.jobs.Update(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Snapshot merges the live queue and history of both back-ends into a
// single view. One unreachable back-end degrades to a partial view; only
// both failing is an error.
func (o *Orchestrator) Snapshot(ctx context.Context) ([]RemoteItem, error) {
	var items []RemoteItem
	var failures []error

	managerLists := []func(context.Context) ([]RemoteItem, error){o.manager.Queue, o.manager.History}
	fetcherLists := []func(context.Context) ([]RemoteItem, error){o.fetcher.Queue, o.fetcher.Done}

	managerOK := false
	for _, list := range managerLists {
		batch, err := list(ctx)
		if err != nil {
			failures = append(failures, fmt.Errorf("catalog manager: %w", err))
			continue
		}
		managerOK = true
		items = append(items, batch...)
	}

	fetcherOK := false
	for _, list := range fetcherLists {
		batch, err := list(ctx)
		if err != nil {
			failures = append(failures, fmt.Errorf("fetcher: %w", err))
			continue
		}
		fetcherOK = true
		items = append(items, batch...)
	}

	if !managerOK && !fetcherOK {
		return nil, errors.Join(failures...)
	}
	for _, failure := range failures {
		o.logger.Warn("partial download status view", "error", failure)
	}
	return items, nil
}

// Cancel makes a best-effort attempt to stop one queue item at its
// owning back-end. Items already terminal are a no-op, not an error.
func (o *Orchestrator) Cancel(ctx context.Context, jobID, itemID string) (*models.DownloadJob, error) {
	job, err := o.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}

	queue := job.Queue()
	item := findItem(queue, itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: no queue item %s on job %s", shared.ErrInvalidInput, itemID, jobID)
	}
	if terminalItem(item.Status) {
		return job, nil
	}

	if item.ServiceJobID != "" {
		switch item.Service {
		case models.ServiceCatalogManager:
			if _, err := o.manager.Cancel(ctx, item.ServiceJobID); err != nil {
				return nil, err
			}
		default:
			if err := o.fetcher.Cancel(ctx, item.ServiceJobID); err != nil {
				return nil, err
			}
		}
	}

	item.Status = models.ItemStatusFailed
	item.Error = "cancelled"
	job.SetQueue(queue)
	o.settle(job)

	if err := o.jobs.Update(job); err != nil {
		return nil, err
	}
	shared.JobLogger(o.logger, jobID).Info("download item cancelled", "item_id", itemID, "service", item.Service)
	return job, nil
}

// MarkOrganized records that a downloaded file has been placed into the
// library layout by hand, clearing it from the pending list.
func (o *Orchestrator) MarkOrganized(jobID, itemID string) (*models.DownloadJob, error) {
	job, err := o.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}

	queue := job.Queue()
	item := findItem(queue, itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: no queue item %s on job %s", shared.ErrInvalidInput, itemID, jobID)
	}

	item.NeedsManualOrganization = false
	job.SetQueue(queue)
	job.SetPendingOrganization(pendingOrganization(queue))

	if err := o.jobs.Update(job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a download job by id.
func (o *Orchestrator) GetJob(jobID string) (*models.DownloadJob, error) {
	return o.jobs.Get(jobID)
}

// ListJobs retrieves an owner's download jobs, optionally filtered by status.
func (o *Orchestrator) ListJobs(ownerID string, status models.JobStatus) ([]*models.DownloadJob, error) {
	return o.jobs.List(map[string]any{"owner_id": ownerID, "status": string(status)})
}

// queue creates the job record and dispatches its items to the back-ends.
func (o *Orchestrator) queue(ctx context.Context, ownerID string, service models.DownloadService, items []models.DownloadQueueItem) (*models.DownloadJob, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to download", shared.ErrInvalidInput)
	}

	job := models.NewDownloadJob(0, ownerID, service)
	job.SetQueue(items)
	if err := o.jobs.Create(job); err != nil {
		return nil, err
	}

	logger := shared.JobLogger(o.logger, job.ID())
	logger.Info("download job queued", "items", len(items), "service", service)

	now := time.Now()
	job.SetStatus(models.JobStatusProcessing)
	job.SetStartedAt(&now)
	if err := o.jobs.Update(job); err != nil {
		return job, err
	}

	o.dispatch(ctx, job, logger)
	o.settle(job)
	if err := o.jobs.Update(job); err != nil {
		return job, err
	}
	return job, nil
}

// dispatch submits queued items to their back-ends in chunks. A failing
// item is marked failed in place; its siblings keep going.
func (o *Orchestrator) dispatch(ctx context.Context, job *models.DownloadJob, logger *log.Logger) {
	queue := job.Queue()

	plans := []struct {
		service   models.DownloadService
		chunkSize int
	}{
		{models.ServiceCatalogManager, managerChunkSize},
		{models.ServiceTrackFetcher, fetcherChunkSize},
	}

	for _, plan := range plans {
		service, chunkSize := plan.service, plan.chunkSize
		var indexes []int
		for i := range queue {
			if queue[i].Service == service && queue[i].Status == models.ItemStatusQueued {
				indexes = append(indexes, i)
			}
		}

		for start := 0; start < len(indexes); start += chunkSize {
			end := min(start+chunkSize, len(indexes))
			for _, i := range indexes[start:end] {
				o.dispatchItem(ctx, &queue[i], logger)
			}
			job.SetQueue(queue)
			job.RecountItems()
			if err := o.jobs.Update(job); err != nil {
				logger.Error("failed to persist dispatch progress", "error", err)
			}
		}
	}
}

func (o *Orchestrator) dispatchItem(ctx context.Context, item *models.DownloadQueueItem, logger *log.Logger) {
	switch item.Service {
	case models.ServiceCatalogManager:
		o.dispatchManaged(ctx, item, logger)
	default:
		o.dispatchFetch(ctx, item, logger)
	}
}

// dispatchManaged resolves the item's artist via the catalog manager's
// search and enqueues a monitored download. An unresolvable artist is a
// terminal per-item failure, not retried.
func (o *Orchestrator) dispatchManaged(ctx context.Context, item *models.DownloadQueueItem, logger *log.Logger) {
	candidates, err := o.manager.SearchArtist(ctx, item.Artist)
	if err != nil {
		item.Status = models.ItemStatusFailed
		item.Error = fmt.Sprintf("artist lookup failed: %v", err)
		logger.Warn("catalog manager dispatch failed", "artist", item.Artist, "error", err)
		return
	}
	if len(candidates) == 0 {
		item.Status = models.ItemStatusFailed
		item.Error = fmt.Sprintf("no artist found for %q", item.Artist)
		return
	}

	serviceJobID, err := o.manager.EnqueueDownload(ctx, MonitorRequest{
		Artist: candidates[0],
		Album:  item.Album,
		Title:  item.Title,
	})
	if err != nil {
		item.Status = models.ItemStatusFailed
		item.Error = err.Error()
		return
	}
	item.ServiceJobID = serviceJobID
	item.Status = models.ItemStatusDownloading
}

// dispatchFetch submits a direct fetch. The fetcher's output lands
// outside the managed library layout, so the item always needs manual
// organization afterwards.
func (o *Orchestrator) dispatchFetch(ctx context.Context, item *models.DownloadQueueItem, logger *log.Logger) {
	request := FetchRequest{URL: item.SourceURL}
	if request.URL == "" {
		request.SearchTerm = strings.TrimSpace(item.Artist + " " + item.Title)
	}

	serviceJobID, err := o.fetcher.Enqueue(ctx, request)
	if err != nil {
		item.Status = models.ItemStatusFailed
		item.Error = err.Error()
		logger.Warn("fetcher dispatch failed", "title", item.Title, "error", err)
		return
	}
	item.ServiceJobID = serviceJobID
	item.Status = models.ItemStatusDownloading
	item.NeedsManualOrganization = true
}

// route picks the back-end for one song.
func (o *Orchestrator) route(song models.Song, prefs Preferences) models.DownloadService {
	if prefs.PreferCatalogForAlbums && song.Album != "" {
		return models.ServiceCatalogManager
	}
	if prefs.DefaultService != "" {
		return prefs.DefaultService
	}
	return o.prefs.DefaultService
}

// settle derives job status from the queue. A batch only fails as a
// whole when every item failed.
func (o *Orchestrator) settle(job *models.DownloadJob) {
	job.RecountItems()
	if job.CompletedItems()+job.FailedItems() < job.TotalItems() {
		job.SetStatus(models.JobStatusProcessing)
		return
	}

	now := time.Now()
	job.SetCompletedAt(&now)
	if job.TotalItems() > 0 && job.FailedItems() == job.TotalItems() {
		job.SetStatus(models.JobStatusFailed)
		job.SetErrorMessage("every item failed")
		return
	}
	job.SetStatus(models.JobStatusCompleted)
}

func buildItem(song models.Song, service models.DownloadService) models.DownloadQueueItem {
	return models.DownloadQueueItem{
		ID:        shared.GenerateID(),
		SongID:    song.PlatformID,
		Title:     song.Title,
		Artist:    song.Artist,
		Album:     song.Album,
		Service:   service,
		Status:    models.ItemStatusQueued,
		SourceURL: song.URL,
	}
}

func findItem(queue []models.DownloadQueueItem, itemID string) *models.DownloadQueueItem {
	for i := range queue {
		if queue[i].ID == itemID {
			return &queue[i]
		}
	}
	return nil
}

func terminalItem(status models.ItemStatus) bool {
	return status == models.ItemStatusCompleted || status == models.ItemStatusFailed
}

// pendingOrganization lists completed downloads still outside the
// managed layout. Nil when nothing is pending.
func pendingOrganization(queue []models.DownloadQueueItem) *models.PendingOrganization {
	var files []string
	for _, item := range queue {
		if !item.NeedsManualOrganization || item.Status != models.ItemStatusCompleted {
			continue
		}
		file := item.DownloadedPath
		if file == "" {
			file = fmt.Sprintf("%s - %s", item.Artist, item.Title)
		}
		files = append(files, file)
	}
	if len(files) == 0 {
		return nil
	}
	return &models.PendingOrganization{
		Files: files,
		Note:  "files fetched outside the managed library layout",
	}
}
