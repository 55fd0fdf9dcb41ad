package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

const localPlatform = "local"

// localSong is the media server's wire representation of a song.
type localSong struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Duration int    `json:"duration"`
	ISRC     string `json:"isrc"`
	Path     string `json:"path"`
}

// LocalAdapter implements Adapter against the local media server's REST
// API. Session handling is internal: a process-wide cached credential
// with refresh-on-401, plus a rate limiter and a TTL cache on searches
// so repeated match queries do not hammer the server.
type LocalAdapter struct {
	baseURL     string
	httpClient  *http.Client
	credentials *CredentialCache
	limiter     *rate.Limiter
	cache       *shared.Cache
}

// NewLocalAdapter creates an adapter for the media server at baseURL,
// authenticating with username/password. The client timeout bounds each
// search call; pass zero for the 5s default.
func NewLocalAdapter(baseURL, username, password string, timeout time.Duration, cache *shared.Cache) *LocalAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	adapter := &LocalAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		cache:      cache,
	}
	adapter.credentials = NewCredentialCache(func(ctx context.Context) (string, error) {
		return adapter.login(ctx, username, password)
	})
	return adapter
}

func (a *LocalAdapter) Platform() string { return localPlatform }

// login exchanges credentials for a session token.
func (a *LocalAdapter) login(ctx context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/login", strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login returned status %d", shared.ErrAuthFailed, resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("%w: empty session token", shared.ErrAuthFailed)
	}

	return body.Token, nil
}

// doRequest performs an authenticated GET, retrying once with a fresh
// token when the server answers 401.
func (a *LocalAdapter) doRequest(ctx context.Context, path string, query url.Values, result any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := a.credentials.Token(ctx)
	if err != nil {
		return err
	}

	status, err := a.get(ctx, path, query, token, result)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if token, err = a.credentials.Refresh(ctx, token); err != nil {
			return err
		}
		if status, err = a.get(ctx, path, query, token, result); err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: media server returned status %d", shared.ErrAPIRequest, status)
	}
	return nil
}

func (a *LocalAdapter) get(ctx context.Context, path string, query url.Values, token string, result any) (int, error) {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Search performs a fuzzy text search against the media server.
func (a *LocalAdapter) Search(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
	cacheKey := fmt.Sprintf("search:%s:%d:%d", query, start, limit)
	if a.cache != nil {
		if cached, ok := a.cache.Get(cacheKey); ok {
			return cached.([]models.Song), nil
		}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", fmt.Sprint(start))
	params.Set("limit", fmt.Sprint(limit))

	var body struct {
		Songs []localSong `json:"songs"`
	}
	if err := a.doRequest(ctx, "/api/songs/search", params, &body); err != nil {
		return nil, err
	}

	songs := a.convert(body.Songs)
	if a.cache != nil {
		a.cache.Set(cacheKey, songs)
	}
	return songs, nil
}

// SearchByISRC performs an exact-identifier lookup.
func (a *LocalAdapter) SearchByISRC(ctx context.Context, isrc string) ([]models.Song, error) {
	params := url.Values{}
	params.Set("isrc", isrc)

	var body struct {
		Songs []localSong `json:"songs"`
	}
	if err := a.doRequest(ctx, "/api/songs/search", params, &body); err != nil {
		return nil, err
	}
	return a.convert(body.Songs), nil
}

// GetByID resolves song ids into songs.
func (a *LocalAdapter) GetByID(ctx context.Context, ids []string) ([]models.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))

	var body struct {
		Songs []localSong `json:"songs"`
	}
	if err := a.doRequest(ctx, "/api/songs", params, &body); err != nil {
		return nil, err
	}
	return a.convert(body.Songs), nil
}

func (a *LocalAdapter) convert(in []localSong) []models.Song {
	songs := make([]models.Song, 0, len(in))
	for _, s := range in {
		songs = append(songs, models.Song{
			Title:      s.Title,
			Artist:     s.Artist,
			Album:      s.Album,
			Duration:   s.Duration,
			ISRC:       s.ISRC,
			Platform:   localPlatform,
			PlatformID: s.ID,
			URL:        a.baseURL + "/api/songs/" + s.ID,
		})
	}
	return songs
}
