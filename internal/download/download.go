// package download routes acquisition requests across the two download
// back-ends and tracks per-item and per-job status.
//
// The catalog manager handles monitored artist/album downloads that land
// inside the managed library layout. The single-track fetcher grabs
// individual tracks from arbitrary sources; its output always needs
// manual organization afterwards. Routing is decided per item, so one
// batch may mix back-ends.
package download

import (
	"context"

	"github.com/castafiore/tunebridge/internal/models"
)

// ArtistCandidate is one result from the catalog manager's artist search.
type ArtistCandidate struct {
	ID        string `json:"id"`
	Name      string `json:"artistName"`
	ForeignID string `json:"foreignArtistId"`
}

// MonitorRequest enqueues a monitored download on the catalog manager.
type MonitorRequest struct {
	Artist ArtistCandidate
	Album  string
	Title  string
}

// FetchRequest enqueues a direct fetch on the single-track fetcher.
// URL wins over SearchTerm when both are set.
type FetchRequest struct {
	URL        string
	SearchTerm string
}

// RemoteItem is one back-end's live view of an enqueued download.
type RemoteItem struct {
	ServiceJobID string
	Service      models.DownloadService
	Title        string
	Status       models.ItemStatus
	Progress     float64
	Path         string
	Error        string
}

// ManagerClient is the catalog-manager back-end surface the orchestrator
// needs. Implemented by CatalogManager; mocked in tests.
type ManagerClient interface {
	SearchArtist(ctx context.Context, term string) ([]ArtistCandidate, error)
	EnqueueDownload(ctx context.Context, req MonitorRequest) (string, error)
	Queue(ctx context.Context) ([]RemoteItem, error)
	History(ctx context.Context) ([]RemoteItem, error)
	Cancel(ctx context.Context, serviceJobID string) (bool, error)
}

// FetcherClient is the single-track-fetcher back-end surface.
type FetcherClient interface {
	Enqueue(ctx context.Context, req FetchRequest) (string, error)
	Queue(ctx context.Context) ([]RemoteItem, error)
	Done(ctx context.Context) ([]RemoteItem, error)
	Cancel(ctx context.Context, serviceJobID string) error
}

// ServiceCounts aggregates item outcomes for one back-end.
type ServiceCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Active    int `json:"active"`
}

// Report summarizes a set of queue items: per-back-end counts plus the
// items still waiting on manual organization.
type Report struct {
	ByService         map[models.DownloadService]ServiceCounts `json:"by_service"`
	NeedsOrganization []models.DownloadQueueItem               `json:"needs_organization"`
}

// GenerateReport aggregates queue items into a Report.
func GenerateReport(items []models.DownloadQueueItem) Report {
	report := Report{ByService: make(map[models.DownloadService]ServiceCounts)}

	for _, item := range items {
		counts := report.ByService[item.Service]
		counts.Total++
		switch item.Status {
		case models.ItemStatusCompleted:
			counts.Completed++
		case models.ItemStatusFailed:
			counts.Failed++
		default:
			counts.Active++
		}
		report.ByService[item.Service] = counts

		if item.NeedsManualOrganization {
			report.NeedsOrganization = append(report.NeedsOrganization, item)
		}
	}
	return report
}
