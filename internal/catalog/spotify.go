// Spotify implementation of [Adapter]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPlatform = "spotify"
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// spotifyTrack is the subset of the track object the matcher needs.
type spotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []spotifyArtist `json:"artists"`
	Album        spotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	ExternalIDs  externalIDs     `json:"external_ids"`
	ExternalURLs externalURLs    `json:"external_urls"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyAdapter implements Adapter for the Spotify Web API, keyed by a
// per-user credential the caller supplies. Token refresh is handled by
// the underlying [oauth2] token source.
type SpotifyAdapter struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// SpotifyAuthConfig builds the OAuth2 config for the authorization-code
// flow. Used on its own for the initial login, before any token exists.
func SpotifyAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"user-library-read", "playlist-read-private"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

// NewSpotifyAdapter creates a Spotify adapter around the given OAuth2
// credentials and user token.
func NewSpotifyAdapter(ctx context.Context, clientID, clientSecret, redirectURI string, token *oauth2.Token) (*SpotifyAdapter, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client credentials", shared.ErrInvalidConfig)
	}
	if token == nil || token.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}

	config := SpotifyAuthConfig(clientID, clientSecret, redirectURI)

	return &SpotifyAdapter{
		config:     config,
		httpClient: config.Client(ctx, token),
	}, nil
}

func (a *SpotifyAdapter) Platform() string { return spotifyPlatform }

// AuthURL returns the OAuth2 authorization URL for the initial user login.
func (a *SpotifyAdapter) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (a *SpotifyAdapter) doRequest(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spotifyBaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Search performs a fuzzy track search.
func (a *SpotifyAdapter) Search(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&offset=%d&limit=%d", url.QueryEscape(query), start, limit)

	var response spotifySearchResponse
	if err := a.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return convertSpotifyTracks(response.Tracks.Items), nil
}

// SearchByISRC performs an exact-identifier lookup via the isrc: filter.
func (a *SpotifyAdapter) SearchByISRC(ctx context.Context, isrc string) ([]models.Song, error) {
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=5", url.QueryEscape("isrc:"+isrc))

	var response spotifySearchResponse
	if err := a.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return convertSpotifyTracks(response.Tracks.Items), nil
}

// GetByID resolves up to 50 track ids per request.
func (a *SpotifyAdapter) GetByID(ctx context.Context, ids []string) ([]models.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var songs []models.Song
	for len(ids) > 0 {
		chunk := ids
		if len(chunk) > 50 {
			chunk = chunk[:50]
		}
		ids = ids[len(chunk):]

		endpoint := "/tracks?ids=" + url.QueryEscape(strings.Join(chunk, ","))

		var response struct {
			Tracks []spotifyTrack `json:"tracks"`
		}
		if err := a.doRequest(ctx, endpoint, &response); err != nil {
			return nil, err
		}
		songs = append(songs, convertSpotifyTracks(response.Tracks)...)
	}

	return songs, nil
}

func convertSpotifyTracks(tracks []spotifyTrack) []models.Song {
	songs := make([]models.Song, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		song := models.Song{
			Title:      t.Name,
			Album:      t.Album.Name,
			Duration:   t.DurationMS / 1000,
			ISRC:       t.ExternalIDs.ISRC,
			Platform:   spotifyPlatform,
			PlatformID: t.ID,
			URL:        t.ExternalURLs.Spotify,
		}
		if len(t.Artists) > 0 {
			song.Artist = t.Artists[0].Name
		}
		songs = append(songs, song)
	}
	return songs
}
