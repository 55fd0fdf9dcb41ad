package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// managerQueueItem is the catalog manager's wire representation of a
// queue or history entry.
type managerQueueItem struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	OutputPath   string  `json:"outputPath"`
	ErrorMessage string  `json:"errorMessage"`
}

// CatalogManager implements ManagerClient against the catalog manager's
// REST API, authenticating with a static API key.
type CatalogManager struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCatalogManager creates a client for the catalog manager at baseURL.
// Pass zero for the 30s default timeout.
func NewCatalogManager(baseURL, apiKey string, timeout time.Duration) *CatalogManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CatalogManager{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SearchArtist resolves a free-text term into artist candidates via the
// back-end's own search.
func (m *CatalogManager) SearchArtist(ctx context.Context, term string) ([]ArtistCandidate, error) {
	params := url.Values{}
	params.Set("term", term)

	var candidates []ArtistCandidate
	if err := m.doRequest(ctx, http.MethodGet, "/api/v1/artist/lookup?"+params.Encode(), nil, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// EnqueueDownload registers a monitored download for a resolved artist
// and returns the back-end's job id.
func (m *CatalogManager) EnqueueDownload(ctx context.Context, req MonitorRequest) (string, error) {
	payload := map[string]any{
		"foreignArtistId": req.Artist.ForeignID,
		"artistName":      req.Artist.Name,
		"monitored":       true,
		"searchNow":       true,
	}
	if req.Album != "" {
		payload["albumFilter"] = req.Album
	}
	if req.Title != "" {
		payload["trackFilter"] = req.Title
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := m.doRequest(ctx, http.MethodPost, "/api/v1/artist", payload, &body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", fmt.Errorf("%w: catalog manager returned no job id", shared.ErrAPIRequest)
	}
	return body.ID, nil
}

// Queue returns the back-end's live download queue.
func (m *CatalogManager) Queue(ctx context.Context) ([]RemoteItem, error) {
	var body struct {
		Records []managerQueueItem `json:"records"`
	}
	if err := m.doRequest(ctx, http.MethodGet, "/api/v1/queue", nil, &body); err != nil {
		return nil, err
	}
	return m.convert(body.Records), nil
}

// History returns finished entries, completed and failed alike.
func (m *CatalogManager) History(ctx context.Context) ([]RemoteItem, error) {
	var body struct {
		Records []managerQueueItem `json:"records"`
	}
	if err := m.doRequest(ctx, http.MethodGet, "/api/v1/history", nil, &body); err != nil {
		return nil, err
	}
	return m.convert(body.Records), nil
}

// Cancel removes an entry from the back-end queue. Reports false without
// error when the entry is already gone.
func (m *CatalogManager) Cancel(ctx context.Context, serviceJobID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.baseURL+"/api/v1/queue/"+serviceJobID, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("X-Api-Key", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("%w: catalog manager returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
}

func (m *CatalogManager) doRequest(ctx context.Context, method, path string, payload, result any) error {
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

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", m.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: catalog manager returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (m *CatalogManager) convert(in []managerQueueItem) []RemoteItem {
	items := make([]RemoteItem, 0, len(in))
	for _, record := range in {
		items = append(items, RemoteItem{
			ServiceJobID: record.ID,
			Service:      models.ServiceCatalogManager,
			Title:        record.Title,
			Status:       managerStatus(record.Status),
			Progress:     record.Progress,
			Path:         record.OutputPath,
			Error:        record.ErrorMessage,
		})
	}
	return items
}

// managerStatus maps the back-end's status vocabulary onto ours.
func managerStatus(s string) models.ItemStatus {
	switch strings.ToLower(s) {
	case "queued", "delay", "paused":
		return models.ItemStatusQueued
	case "completed", "imported":
		return models.ItemStatusCompleted
	case "failed", "warning":
		return models.ItemStatusFailed
	default:
		return models.ItemStatusDownloading
	}
}
