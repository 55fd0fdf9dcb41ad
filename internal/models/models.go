package models

import (
	"time"
)

// Model defines the base interface for all persistent records in the pipeline.
// Implementations include ImportJob, ExportJob and DownloadJob.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Song is the canonical representation of one track. Immutable once
// parsed; Resolved returns a new value rather than mutating the original.
type Song struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"` // seconds
	ISRC     string `json:"isrc,omitempty"`

	// Set once the song has been resolved against a platform catalog.
	Platform   string `json:"platform,omitempty"`
	PlatformID string `json:"platform_id,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Resolved returns a copy of the song bound to a platform identity.
func (s Song) Resolved(platform, platformID, url string) Song {
	resolved := s
	resolved.Platform = platform
	resolved.PlatformID = platformID
	resolved.URL = url
	return resolved
}

// Playlist is the canonical playlist representation. Song order is
// meaningful and preserved end-to-end.
type Playlist struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Platform    string `json:"platform,omitempty"` // origin platform
	Songs       []Song `json:"songs"`
}

// Confidence is a coarse bucket summarizing a match score for review UIs.
type Confidence string

const (
	ConfidenceExact Confidence = "exact"
	ConfidenceHigh  Confidence = "high"
	ConfidenceLow   Confidence = "low"
	ConfidenceNone  Confidence = "none"
)

// MatchCandidate is one hypothesis produced by the matcher for a song.
// Candidates are ranked by score and not deduplicated across platforms.
type MatchCandidate struct {
	Platform    string     `json:"platform"`
	PlatformID  string     `json:"platform_id"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Album       string     `json:"album,omitempty"`
	Duration    int        `json:"duration,omitempty"`
	URL         string     `json:"url,omitempty"`
	Confidence  Confidence `json:"confidence"`
	MatchScore  int        `json:"match_score"` // 0-100
	MatchReason string     `json:"match_reason"`
}

// MatchStatus describes one song's matching outcome.
//
// matched and skipped are terminal. pending_review is the only status a
// human can transition, into either matched or skipped.
type MatchStatus string

const (
	MatchStatusMatched       MatchStatus = "matched"
	MatchStatusPendingReview MatchStatus = "pending_review"
	MatchStatusNoMatch       MatchStatus = "no_match"
	MatchStatusSkipped       MatchStatus = "skipped"
)

// SelectedMatch identifies the accepted candidate for a song.
type SelectedMatch struct {
	Platform   string `json:"platform"`
	PlatformID string `json:"platform_id"`
}

// SongMatchResult is one song's matching outcome: the original song, its
// ranked candidates and the accepted selection if any.
type SongMatchResult struct {
	Song          Song             `json:"song"`
	Matches       []MatchCandidate `json:"matches"`
	SelectedMatch *SelectedMatch   `json:"selected_match,omitempty"`
	Status        MatchStatus      `json:"status"`
}

// JobStatus is the shared lifecycle for import, export and download jobs.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// DownloadService identifies an acquisition back-end.
type DownloadService string

const (
	ServiceCatalogManager DownloadService = "catalog-manager"
	ServiceTrackFetcher   DownloadService = "single-track-fetcher"
)

// ItemStatus is the per-item download lifecycle.
type ItemStatus string

const (
	ItemStatusQueued      ItemStatus = "queued"
	ItemStatusDownloading ItemStatus = "downloading"
	ItemStatusCompleted   ItemStatus = "completed"
	ItemStatusFailed      ItemStatus = "failed"
)

// DownloadQueueItem is one entry in a download job's ordered queue.
type DownloadQueueItem struct {
	ID           string          `json:"id"`
	SongID       string          `json:"song_id,omitempty"` // transient when the song is not stored yet
	Title        string          `json:"title"`
	Artist       string          `json:"artist"`
	Album        string          `json:"album,omitempty"`
	Service      DownloadService `json:"service"`
	Status       ItemStatus      `json:"status"`
	SourceURL    string          `json:"source_url,omitempty"` // known source for the fetcher, else it searches
	ServiceJobID string          `json:"service_job_id,omitempty"`
	Progress     float64         `json:"progress,omitempty"`
	Error        string          `json:"error,omitempty"`
	// DownloadedPath is set once the back-end reports a finished file.
	DownloadedPath string `json:"downloaded_path,omitempty"`
	// NeedsManualOrganization marks files that land outside the managed
	// library layout and must be moved or renamed by a human.
	NeedsManualOrganization bool `json:"needs_manual_organization,omitempty"`
}

// PendingOrganization lists files whose final library placement was not
// automatic.
type PendingOrganization struct {
	Files []string `json:"files"`
	Note  string   `json:"note,omitempty"`
}
