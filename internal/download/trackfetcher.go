package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// fetcherItem is the track fetcher's wire representation of a download.
type fetcherItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Filename string  `json:"filename"`
	Error    string  `json:"error"`
}

// TrackFetcher implements FetcherClient against the single-track
// fetcher's REST API. Format and quality are fixed per client; the
// fetcher applies them to every download.
type TrackFetcher struct {
	baseURL    string
	format     string
	quality    string
	httpClient *http.Client
}

// NewTrackFetcher creates a client for the fetcher at baseURL. Pass zero
// for the 30s default timeout.
func NewTrackFetcher(baseURL, format, quality string, timeout time.Duration) *TrackFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if format == "" {
		format = "mp3"
	}
	return &TrackFetcher{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		format:     format,
		quality:    quality,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enqueue submits a direct fetch and returns the fetcher's job id.
func (f *TrackFetcher) Enqueue(ctx context.Context, req FetchRequest) (string, error) {
	payload := map[string]any{
		"format":  f.format,
		"quality": f.quality,
	}
	switch {
	case req.URL != "":
		payload["url"] = req.URL
	case req.SearchTerm != "":
		payload["search"] = req.SearchTerm
	default:
		return "", fmt.Errorf("%w: fetch request needs a url or a search term", shared.ErrInvalidInput)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := f.doRequest(ctx, http.MethodPost, "/api/download", payload, &body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", fmt.Errorf("%w: fetcher returned no job id", shared.ErrAPIRequest)
	}
	return body.ID, nil
}

// Queue returns downloads the fetcher is still working on.
func (f *TrackFetcher) Queue(ctx context.Context) ([]RemoteItem, error) {
	var records []fetcherItem
	if err := f.doRequest(ctx, http.MethodGet, "/api/queue", nil, &records); err != nil {
		return nil, err
	}
	return f.convert(records), nil
}

// Done returns finished downloads, completed and failed alike.
func (f *TrackFetcher) Done(ctx context.Context) ([]RemoteItem, error) {
	var records []fetcherItem
	if err := f.doRequest(ctx, http.MethodGet, "/api/done", nil, &records); err != nil {
		return nil, err
	}
	return f.convert(records), nil
}

// Cancel stops a download. A job the fetcher no longer knows about is a
// no-op, not an error.
func (f *TrackFetcher) Cancel(ctx context.Context, serviceJobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, f.baseURL+"/api/download/"+serviceJobID, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: fetcher returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return nil
}

func (f *TrackFetcher) doRequest(ctx context.Context, method, path string, payload, result any) error {
	var reqBody *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: fetcher returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (f *TrackFetcher) convert(in []fetcherItem) []RemoteItem {
	items := make([]RemoteItem, 0, len(in))
	for _, record := range in {
		items = append(items, RemoteItem{
			ServiceJobID: record.ID,
			Service:      models.ServiceTrackFetcher,
			Title:        record.Title,
			Status:       fetcherStatus(record.Status),
			Progress:     record.Progress,
			Path:         record.Filename,
			Error:        record.Error,
		})
	}
	return items
}

func fetcherStatus(s string) models.ItemStatus {
	switch strings.ToLower(s) {
	case "queued", "pending":
		return models.ItemStatusQueued
	case "done", "completed":
		return models.ItemStatusCompleted
	case "error", "failed":
		return models.ItemStatusFailed
	default:
		return models.ItemStatusDownloading
	}
}
