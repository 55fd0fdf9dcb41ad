package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/castafiore/tunebridge/internal/catalog"
	"github.com/castafiore/tunebridge/internal/download"
	"github.com/castafiore/tunebridge/internal/jobs"
	"github.com/castafiore/tunebridge/internal/match"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/repositories"
	tbtest "github.com/castafiore/tunebridge/internal/testing"
)

const importBody = `{"text":"#EXTM3U\n#PLAYLIST:Evening Mix\n#EXTINF:250,Foo Fighters - Everlong\neverlong.mp3\n","filename":"mix.m3u"}`

// testAPI wires a full pipeline over an in-memory database behind a
// router, the way serve does in production.
func testAPI(t *testing.T) (http.Handler, *repositories.PlaylistRepository) {
	t.Helper()

	db := tbtest.NewTestDB(t)
	logger := log.New(io.Discard)
	playlists := repositories.NewPlaylistRepository(db)

	adapter := &tbtest.MockAdapter{
		PlatformName: "local",
		SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
			if strings.Contains(strings.ToLower(query), "everlong") {
				return []models.Song{{Title: "Everlong", Artist: "Foo Fighters", Platform: "local", PlatformID: "s1"}}, nil
			}
			return nil, nil
		},
	}

	imports := jobs.NewImportController(
		repositories.NewImportJobRepository(db),
		playlists,
		match.New([]catalog.Adapter{adapter}, match.Options{}),
		logger,
		jobs.ImportOptions{},
	)
	exports := jobs.NewExportController(repositories.NewExportJobRepository(db), playlists, nil, logger)
	downloads := download.NewOrchestrator(
		repositories.NewDownloadJobRepository(db),
		&tbtest.MockManager{},
		&tbtest.MockFetcher{},
		logger,
		download.Preferences{},
	)

	router := NewBasicRouter()
	router.Use(RecoverMiddleware(logger))
	router.Handler(NewAPIHandler(imports, exports, downloads, logger))
	return router, playlists
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON object: %v\n%s", err, recorder.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	handler, _ := testAPI(t)

	recorder := do(t, handler, http.MethodGet, "/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestImportEndpoints(t *testing.T) {
	t.Run("StartAndGet", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/imports", importBody)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
		}
		created := decodeBody(t, recorder)
		if created["status"] != string(models.JobStatusCompleted) {
			t.Errorf("expected completed import, got %v", created["status"])
		}

		jobID := created["id"].(string)
		recorder = do(t, handler, http.MethodGet, "/api/imports/"+jobID, "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if got := decodeBody(t, recorder); got["id"] != jobID {
			t.Errorf("unexpected job: %v", got["id"])
		}
	})

	t.Run("MissingText", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/imports", `{"filename":"mix.m3u"}`)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/imports", `{broken`)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}
	})

	t.Run("UnknownJobIs404", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodGet, "/api/imports/ghost", "")
		if recorder.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", recorder.Code)
		}
	})

	t.Run("CancelCompletedIs409", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/imports", importBody)
		jobID := decodeBody(t, recorder)["id"].(string)

		recorder = do(t, handler, http.MethodPost, "/api/imports/"+jobID+"/cancel", `{}`)
		if recorder.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("ReviewCompletedIsNoOp", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/imports", importBody)
		jobID := decodeBody(t, recorder)["id"].(string)

		recorder = do(t, handler, http.MethodPost, "/api/imports/"+jobID+"/review", `{"decisions":[]}`)
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
	})

	t.Run("List", func(t *testing.T) {
		handler, _ := testAPI(t)

		do(t, handler, http.MethodPost, "/api/imports", importBody)
		recorder := do(t, handler, http.MethodGet, "/api/imports", "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}

		var list []any
		if err := json.Unmarshal(recorder.Body.Bytes(), &list); err != nil {
			t.Fatalf("expected a JSON array: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("expected 1 job, got %d", len(list))
		}
	})
}

func TestExportEndpoints(t *testing.T) {
	seed := func(t *testing.T, playlists *repositories.PlaylistRepository) string {
		t.Helper()
		record, err := playlists.Create(defaultOwner, models.Playlist{
			Name:  "Evening Mix",
			Songs: []models.Song{{Title: "Everlong", Artist: "Foo Fighters", Platform: "local", PlatformID: "s1"}},
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return record.ID
	}

	t.Run("StartAndDownload", func(t *testing.T) {
		handler, playlists := testAPI(t)
		playlistID := seed(t, playlists)

		recorder := do(t, handler, http.MethodPost, "/api/exports", `{"playlist_id":"`+playlistID+`","format":"json"}`)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
		}
		jobID := decodeBody(t, recorder)["id"].(string)

		recorder = do(t, handler, http.MethodGet, "/api/exports/"+jobID+"/download", "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if disposition := recorder.Header().Get("Content-Disposition"); !strings.Contains(disposition, "Evening Mix.json") {
			t.Errorf("unexpected disposition: %q", disposition)
		}
		if !strings.Contains(recorder.Body.String(), "Everlong") {
			t.Error("download should serve the rendered playlist")
		}
	})

	t.Run("UnknownPlaylistIs404", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/exports", `{"playlist_id":"ghost","format":"json"}`)
		if recorder.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", recorder.Code)
		}
	})

	t.Run("BadFormatIs400", func(t *testing.T) {
		handler, playlists := testAPI(t)
		playlistID := seed(t, playlists)

		recorder := do(t, handler, http.MethodPost, "/api/exports", `{"playlist_id":"`+playlistID+`","format":"wav"}`)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}
	})
}

func TestDownloadEndpoints(t *testing.T) {
	queueBody := `{"songs":[{"title":"Everlong","artist":"Foo Fighters"}]}`

	t.Run("QueueAndStatus", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/downloads", queueBody)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
		}
		created := decodeBody(t, recorder)
		if created["total_items"].(float64) != 1 {
			t.Errorf("expected 1 item, got %v", created["total_items"])
		}

		jobID := created["id"].(string)
		recorder = do(t, handler, http.MethodGet, "/api/downloads/"+jobID, "")
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", recorder.Code)
		}
	})

	t.Run("EmptySongsIs400", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/downloads", `{"songs":[]}`)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}
	})

	t.Run("Report", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/downloads", queueBody)
		jobID := decodeBody(t, recorder)["id"].(string)

		recorder = do(t, handler, http.MethodGet, "/api/downloads/"+jobID+"/report", "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if body := decodeBody(t, recorder); body["by_service"] == nil {
			t.Errorf("report missing service counts: %v", body)
		}
	})

	t.Run("CancelUnknownItemIs400", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodPost, "/api/downloads", queueBody)
		jobID := decodeBody(t, recorder)["id"].(string)

		recorder = do(t, handler, http.MethodPost, "/api/downloads/"+jobID+"/cancel", `{"item_id":"nope"}`)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		handler, _ := testAPI(t)

		recorder := do(t, handler, http.MethodGet, "/api/downloads/status", "")
		if recorder.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", recorder.Code)
		}
	})
}

func TestOwnerScoping(t *testing.T) {
	handler, _ := testAPI(t)

	request := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(importBody))
	request.Header.Set("X-Owner-Id", "alice")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", recorder.Code)
	}

	// The default owner sees nothing of alice's jobs.
	recorder = do(t, handler, http.MethodGet, "/api/imports", "")
	var list []any
	if err := json.Unmarshal(recorder.Body.Bytes(), &list); err != nil {
		t.Fatalf("expected a JSON array: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no jobs for the default owner, got %d", len(list))
	}
}

func TestRecoverMiddleware(t *testing.T) {
	router := NewBasicRouter()
	router.Use(RecoverMiddleware(log.New(io.Discard)))
	router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	recorder := do(t, router, http.MethodGet, "/boom", "")
	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 from a recovered panic, got %d", recorder.Code)
	}
}
