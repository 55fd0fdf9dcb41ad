// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/castafiore/tunebridge/internal/download"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// MockAdapter is a configurable test double for [catalog.Adapter].
// Zero-value methods return empty results; set the function fields to
// script behavior per test.
type MockAdapter struct {
	PlatformName string

	SearchFunc       func(ctx context.Context, query string, start, limit int) ([]models.Song, error)
	SearchByISRCFunc func(ctx context.Context, isrc string) ([]models.Song, error)
	GetByIDFunc      func(ctx context.Context, ids []string) ([]models.Song, error)
}

func (m *MockAdapter) Platform() string {
	if m.PlatformName == "" {
		return "mock"
	}
	return m.PlatformName
}

func (m *MockAdapter) Search(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
	if m.SearchFunc == nil {
		return nil, nil
	}
	return m.SearchFunc(ctx, query, start, limit)
}

func (m *MockAdapter) SearchByISRC(ctx context.Context, isrc string) ([]models.Song, error) {
	if m.SearchByISRCFunc == nil {
		return nil, nil
	}
	return m.SearchByISRCFunc(ctx, isrc)
}

func (m *MockAdapter) GetByID(ctx context.Context, ids []string) ([]models.Song, error) {
	if m.GetByIDFunc == nil {
		return nil, nil
	}
	return m.GetByIDFunc(ctx, ids)
}

// MockManager is a scriptable test double for [download.ManagerClient].
type MockManager struct {
	SearchArtistFunc func(ctx context.Context, term string) ([]download.ArtistCandidate, error)
	EnqueueFunc      func(ctx context.Context, req download.MonitorRequest) (string, error)
	QueueFunc        func(ctx context.Context) ([]download.RemoteItem, error)
	HistoryFunc      func(ctx context.Context) ([]download.RemoteItem, error)
	CancelFunc       func(ctx context.Context, id string) (bool, error)
}

func (m *MockManager) SearchArtist(ctx context.Context, term string) ([]download.ArtistCandidate, error) {
	if m.SearchArtistFunc == nil {
		return nil, nil
	}
	return m.SearchArtistFunc(ctx, term)
}

func (m *MockManager) EnqueueDownload(ctx context.Context, req download.MonitorRequest) (string, error) {
	if m.EnqueueFunc == nil {
		return "manager-job", nil
	}
	return m.EnqueueFunc(ctx, req)
}

func (m *MockManager) Queue(ctx context.Context) ([]download.RemoteItem, error) {
	if m.QueueFunc == nil {
		return nil, nil
	}
	return m.QueueFunc(ctx)
}

func (m *MockManager) History(ctx context.Context) ([]download.RemoteItem, error) {
	if m.HistoryFunc == nil {
		return nil, nil
	}
	return m.HistoryFunc(ctx)
}

func (m *MockManager) Cancel(ctx context.Context, id string) (bool, error) {
	if m.CancelFunc == nil {
		return true, nil
	}
	return m.CancelFunc(ctx, id)
}

// MockFetcher is a scriptable test double for [download.FetcherClient].
type MockFetcher struct {
	EnqueueFunc func(ctx context.Context, req download.FetchRequest) (string, error)
	QueueFunc   func(ctx context.Context) ([]download.RemoteItem, error)
	DoneFunc    func(ctx context.Context) ([]download.RemoteItem, error)
	CancelFunc  func(ctx context.Context, id string) error
}

func (m *MockFetcher) Enqueue(ctx context.Context, req download.FetchRequest) (string, error) {
	if m.EnqueueFunc == nil {
		return "fetcher-job", nil
	}
	return m.EnqueueFunc(ctx, req)
}

func (m *MockFetcher) Queue(ctx context.Context) ([]download.RemoteItem, error) {
	if m.QueueFunc == nil {
		return nil, nil
	}
	return m.QueueFunc(ctx)
}

func (m *MockFetcher) Done(ctx context.Context) ([]download.RemoteItem, error) {
	if m.DoneFunc == nil {
		return nil, nil
	}
	return m.DoneFunc(ctx)
}

func (m *MockFetcher) Cancel(ctx context.Context, id string) error {
	if m.CancelFunc == nil {
		return nil
	}
	return m.CancelFunc(ctx, id)
}

// NewTestDB opens an in-memory database with the full schema applied.
// The handle is closed when the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// FWriter always returns an error on Write.
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

var _ io.Writer = (*FWriter)(nil)
