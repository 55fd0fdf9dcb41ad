package models

import (
	"fmt"
	"time"
)

// record holds the identity and bookkeeping fields shared by every
// persistent job type.
type record struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time
}

func newRecord(sequence int) record {
	now := time.Now()
	return record{sequence: sequence, createdAt: now, updatedAt: now}
}

func (r *record) ID() string           { return r.id }
func (r *record) Sequence() int        { return r.sequence }
func (r *record) CreatedAt() time.Time { return r.createdAt }
func (r *record) UpdatedAt() time.Time { return r.updatedAt }

func (r *record) SetID(id string)          { r.id = id }
func (r *record) SetSequence(n int)        { r.sequence = n }
func (r *record) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *record) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// jobState holds the lifecycle fields shared by import, export and
// download jobs.
type jobState struct {
	status       JobStatus
	errorMessage string
	startedAt    *time.Time
	completedAt  *time.Time
}

func (j *jobState) Status() JobStatus       { return j.status }
func (j *jobState) ErrorMessage() string    { return j.errorMessage }
func (j *jobState) StartedAt() *time.Time   { return j.startedAt }
func (j *jobState) CompletedAt() *time.Time { return j.completedAt }

func (j *jobState) SetStatus(s JobStatus)       { j.status = s }
func (j *jobState) SetErrorMessage(msg string)  { j.errorMessage = msg }
func (j *jobState) SetStartedAt(t *time.Time)   { j.startedAt = t }
func (j *jobState) SetCompletedAt(t *time.Time) { j.completedAt = t }

func validStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ImportJob tracks one playlist import through parse, match, review and
// commit. Match results are persisted in full so a review round can
// resume after the initiating request ends.
type ImportJob struct {
	record
	jobState

	ownerID          string
	format           string
	targetPlatform   string
	targetPlaylistID string

	totalSongs         int
	processedSongs     int
	matchedSongs       int
	unmatchedSongs     int
	pendingReviewSongs int

	matchResults []SongMatchResult
	warnings     []string
}

// NewImportJob creates a pending import job for the given owner and format.
func NewImportJob(sequence int, ownerID, format, targetPlatform string) *ImportJob {
	return &ImportJob{
		record:         newRecord(sequence),
		jobState:       jobState{status: JobStatusPending},
		ownerID:        ownerID,
		format:         format,
		targetPlatform: targetPlatform,
	}
}

func (j *ImportJob) OwnerID() string                { return j.ownerID }
func (j *ImportJob) Format() string                 { return j.format }
func (j *ImportJob) TargetPlatform() string         { return j.targetPlatform }
func (j *ImportJob) TargetPlaylistID() string       { return j.targetPlaylistID }
func (j *ImportJob) TotalSongs() int                { return j.totalSongs }
func (j *ImportJob) ProcessedSongs() int            { return j.processedSongs }
func (j *ImportJob) MatchedSongs() int              { return j.matchedSongs }
func (j *ImportJob) UnmatchedSongs() int            { return j.unmatchedSongs }
func (j *ImportJob) PendingReviewSongs() int        { return j.pendingReviewSongs }
func (j *ImportJob) MatchResults() []SongMatchResult { return j.matchResults }
func (j *ImportJob) Warnings() []string             { return j.warnings }

func (j *ImportJob) SetTargetPlaylistID(id string)             { j.targetPlaylistID = id }
func (j *ImportJob) SetTotalSongs(n int)                       { j.totalSongs = n }
func (j *ImportJob) SetMatchResults(results []SongMatchResult) { j.matchResults = results }
func (j *ImportJob) SetWarnings(warnings []string)             { j.warnings = warnings }
func (j *ImportJob) AddWarning(warning string)                 { j.warnings = append(j.warnings, warning) }

// RecountSongs recomputes the counters from the persisted match results.
// Songs with a zero-value status have not been processed yet.
func (j *ImportJob) RecountSongs() {
	processed, matched, unmatched, pending := 0, 0, 0, 0
	for _, result := range j.matchResults {
		switch result.Status {
		case MatchStatusMatched:
			matched++
		case MatchStatusNoMatch, MatchStatusSkipped:
			unmatched++
		case MatchStatusPendingReview:
			pending++
		default:
			continue
		}
		processed++
	}
	j.processedSongs = processed
	j.matchedSongs = matched
	j.unmatchedSongs = unmatched
	j.pendingReviewSongs = pending
}

// SetCounters restores persisted counters without recounting.
func (j *ImportJob) SetCounters(processed, matched, unmatched, pending int) {
	j.processedSongs = processed
	j.matchedSongs = matched
	j.unmatchedSongs = unmatched
	j.pendingReviewSongs = pending
}

// Validate checks the job's invariants: a known status, non-negative
// counters, processed never exceeding total, and the processed split
// adding up.
func (j *ImportJob) Validate() error {
	if j.ownerID == "" {
		return fmt.Errorf("import job requires an owner")
	}
	if j.format == "" {
		return fmt.Errorf("import job requires a format")
	}
	if !validStatus(j.status) {
		return fmt.Errorf("invalid import job status: %s", j.status)
	}
	if j.processedSongs > j.totalSongs {
		return fmt.Errorf("processed songs (%d) exceeds total (%d)", j.processedSongs, j.totalSongs)
	}
	if j.matchedSongs+j.unmatchedSongs+j.pendingReviewSongs != j.processedSongs {
		return fmt.Errorf("song counters do not add up to processed count")
	}
	return nil
}

// ExportJob mirrors ImportJob for the opposite direction: it renders a
// stored playlist into a text format and keeps the rendered bytes for
// later download.
type ExportJob struct {
	record
	jobState

	ownerID          string
	format           string
	sourcePlaylistID string
	exportedData     string
	filename         string
}

// NewExportJob creates a pending export job for the given playlist.
func NewExportJob(sequence int, ownerID, format, sourcePlaylistID string) *ExportJob {
	return &ExportJob{
		record:           newRecord(sequence),
		jobState:         jobState{status: JobStatusPending},
		ownerID:          ownerID,
		format:           format,
		sourcePlaylistID: sourcePlaylistID,
	}
}

func (j *ExportJob) OwnerID() string          { return j.ownerID }
func (j *ExportJob) Format() string           { return j.format }
func (j *ExportJob) SourcePlaylistID() string { return j.sourcePlaylistID }
func (j *ExportJob) ExportedData() string     { return j.exportedData }
func (j *ExportJob) Filename() string         { return j.filename }

func (j *ExportJob) SetExportedData(data string) { j.exportedData = data }
func (j *ExportJob) SetFilename(filename string) { j.filename = filename }

func (j *ExportJob) Validate() error {
	if j.ownerID == "" {
		return fmt.Errorf("export job requires an owner")
	}
	if j.format == "" {
		return fmt.Errorf("export job requires a format")
	}
	if j.sourcePlaylistID == "" {
		return fmt.Errorf("export job requires a source playlist")
	}
	if !validStatus(j.status) {
		return fmt.Errorf("invalid export job status: %s", j.status)
	}
	return nil
}

// DownloadJob batches acquisition requests routed across the two
// download back-ends. The queue is ordered and each item carries its own
// status so one item's failure never aborts its siblings.
type DownloadJob struct {
	record
	jobState

	ownerID             string
	service             DownloadService
	totalItems          int
	completedItems      int
	failedItems         int
	queue               []DownloadQueueItem
	pendingOrganization *PendingOrganization
}

// NewDownloadJob creates a pending download job. The service records the
// primary back-end; individual queue items may still route elsewhere.
func NewDownloadJob(sequence int, ownerID string, service DownloadService) *DownloadJob {
	return &DownloadJob{
		record:   newRecord(sequence),
		jobState: jobState{status: JobStatusPending},
		ownerID:  ownerID,
		service:  service,
	}
}

func (j *DownloadJob) OwnerID() string                           { return j.ownerID }
func (j *DownloadJob) Service() DownloadService                  { return j.service }
func (j *DownloadJob) TotalItems() int                           { return j.totalItems }
func (j *DownloadJob) CompletedItems() int                       { return j.completedItems }
func (j *DownloadJob) FailedItems() int                          { return j.failedItems }
func (j *DownloadJob) Queue() []DownloadQueueItem                { return j.queue }
func (j *DownloadJob) PendingOrganization() *PendingOrganization { return j.pendingOrganization }

func (j *DownloadJob) SetQueue(queue []DownloadQueueItem) {
	j.queue = queue
	j.totalItems = len(queue)
}

func (j *DownloadJob) SetPendingOrganization(p *PendingOrganization) { j.pendingOrganization = p }

// SetItemCounts restores persisted aggregate counters.
func (j *DownloadJob) SetItemCounts(total, completed, failed int) {
	j.totalItems = total
	j.completedItems = completed
	j.failedItems = failed
}

// RecountItems recomputes aggregate counters from the queue.
func (j *DownloadJob) RecountItems() {
	completed, failed := 0, 0
	for _, item := range j.queue {
		switch item.Status {
		case ItemStatusCompleted:
			completed++
		case ItemStatusFailed:
			failed++
		}
	}
	j.totalItems = len(j.queue)
	j.completedItems = completed
	j.failedItems = failed
}

func (j *DownloadJob) Validate() error {
	if j.ownerID == "" {
		return fmt.Errorf("download job requires an owner")
	}
	if j.service != ServiceCatalogManager && j.service != ServiceTrackFetcher {
		return fmt.Errorf("unknown download service: %s", j.service)
	}
	if !validStatus(j.status) {
		return fmt.Errorf("invalid download job status: %s", j.status)
	}
	if j.completedItems+j.failedItems > j.totalItems {
		return fmt.Errorf("item counters exceed total")
	}
	return nil
}
