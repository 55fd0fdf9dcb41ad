package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/castafiore/tunebridge/internal/shared"
)

// fakeMediaServer stands in for the local media server: a login endpoint
// issuing session tokens and a search endpoint validating them.
type fakeMediaServer struct {
	*httptest.Server

	logins   atomic.Int32
	searches atomic.Int32
	expired  atomic.Bool // when set, the current token answers 401 once
}

func newFakeMediaServer(t *testing.T) *fakeMediaServer {
	t.Helper()

	f := &fakeMediaServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.logins.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"token": "session-token"})
	})

	mux.HandleFunc("GET /api/songs/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.expired.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.searches.Add(1)

		json.NewEncoder(w).Encode(map[string]any{
			"songs": []map[string]any{{
				"id":       "s1",
				"title":    "Everlong",
				"artist":   "Foo Fighters",
				"album":    "The Colour and the Shape",
				"duration": 250,
				"isrc":     "USRW29600011",
			}},
		})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func TestLocalAdapter(t *testing.T) {
	t.Run("SearchConvertsSongs", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "hunter2", 0, nil)

		songs, err := adapter.Search(context.Background(), "everlong", 0, 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(songs) != 1 {
			t.Fatalf("expected 1 song, got %d", len(songs))
		}

		song := songs[0]
		if song.Platform != "local" || song.PlatformID != "s1" {
			t.Errorf("platform identity not set: %+v", song)
		}
		if song.ISRC != "USRW29600011" || song.Duration != 250 {
			t.Errorf("metadata lost in conversion: %+v", song)
		}
		if song.URL == "" {
			t.Error("expected a resolvable URL")
		}
	})

	t.Run("SessionTokenReused", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "hunter2", 0, nil)

		for range 3 {
			if _, err := adapter.SearchByISRC(context.Background(), "USRW29600011"); err != nil {
				t.Fatalf("SearchByISRC failed: %v", err)
			}
		}
		if got := server.logins.Load(); got != 1 {
			t.Errorf("expected a single login, got %d", got)
		}
	})

	t.Run("RefreshOn401", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "hunter2", 0, nil)

		if _, err := adapter.SearchByISRC(context.Background(), "USRW29600011"); err != nil {
			t.Fatalf("SearchByISRC failed: %v", err)
		}

		server.expired.Store(true)
		if _, err := adapter.SearchByISRC(context.Background(), "USRW29600011"); err != nil {
			t.Fatalf("expected a transparent retry after 401: %v", err)
		}
		if got := server.logins.Load(); got != 2 {
			t.Errorf("expected a second login after expiry, got %d", got)
		}
	})

	t.Run("BadCredentials", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "wrong", 0, nil)

		if _, err := adapter.Search(context.Background(), "everlong", 0, 10); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("SearchResultsCached", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "hunter2", 0, shared.NewCache(time.Minute))

		for range 3 {
			if _, err := adapter.Search(context.Background(), "everlong", 0, 10); err != nil {
				t.Fatalf("Search failed: %v", err)
			}
		}
		if got := server.searches.Load(); got != 1 {
			t.Errorf("expected 1 upstream search, got %d", got)
		}
	})

	t.Run("ISRCLookupsNotCached", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "hunter2", 0, shared.NewCache(time.Minute))

		for range 2 {
			if _, err := adapter.SearchByISRC(context.Background(), "USRW29600011"); err != nil {
				t.Fatalf("SearchByISRC failed: %v", err)
			}
		}
		if got := server.searches.Load(); got != 2 {
			t.Errorf("identifier lookups should hit upstream every time, got %d", got)
		}
	})

	t.Run("GetByIDEmptyInput", func(t *testing.T) {
		adapter := NewLocalAdapter("http://unused", "admin", "hunter2", 0, nil)

		songs, err := adapter.GetByID(context.Background(), nil)
		if err != nil || songs != nil {
			t.Errorf("empty input should short-circuit, got %v, %v", songs, err)
		}
	})

	t.Run("ServerDown", func(t *testing.T) {
		server := newFakeMediaServer(t)
		adapter := NewLocalAdapter(server.URL, "admin", "hunter2", 0, nil)
		server.Close()

		if _, err := adapter.Search(context.Background(), "everlong", 0, 10); err == nil {
			t.Error("expected an error with the server down")
		}
	})
}

func TestCredentialCache(t *testing.T) {
	t.Run("FetchOnceThenCached", func(t *testing.T) {
		fetches := 0
		cache := NewCredentialCache(func(ctx context.Context) (string, error) {
			fetches++
			return "token-1", nil
		})

		for range 3 {
			token, err := cache.Token(context.Background())
			if err != nil {
				t.Fatalf("Token failed: %v", err)
			}
			if token != "token-1" {
				t.Errorf("unexpected token %q", token)
			}
		}
		if fetches != 1 {
			t.Errorf("expected 1 fetch, got %d", fetches)
		}
	})

	t.Run("RefreshSkipsWhenAlreadyFresh", func(t *testing.T) {
		tokens := []string{"token-1", "token-2"}
		cache := NewCredentialCache(func(ctx context.Context) (string, error) {
			token := tokens[0]
			tokens = tokens[1:]
			return token, nil
		})

		first, err := cache.Token(context.Background())
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}

		fresh, err := cache.Refresh(context.Background(), first)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if fresh != "token-2" {
			t.Errorf("expected a new token, got %q", fresh)
		}

		// A caller holding the already-replaced token gets the cached
		// value back without another fetch.
		again, err := cache.Refresh(context.Background(), first)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if again != "token-2" {
			t.Errorf("stale refresh should return the cached token, got %q", again)
		}
	})

	t.Run("FetchFailureWrapped", func(t *testing.T) {
		cache := NewCredentialCache(func(ctx context.Context) (string, error) {
			return "", errors.New("connection refused")
		})

		if _, err := cache.Token(context.Background()); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("InvalidateForcesFetch", func(t *testing.T) {
		fetches := 0
		cache := NewCredentialCache(func(ctx context.Context) (string, error) {
			fetches++
			return "token", nil
		})

		cache.Token(context.Background())
		cache.Invalidate()
		cache.Token(context.Background())
		if fetches != 2 {
			t.Errorf("expected a refetch after invalidation, got %d", fetches)
		}
	})
}
