// package catalog defines the uniform search contract over song sources
// and its implementations: the local media server and remote streaming
// platforms.
//
// Adapters are stateless from the caller's point of view and safe to
// share across concurrent matches. Network failures never escape raw;
// they are wrapped into the shared error taxonomy at this boundary.
package catalog

import (
	"context"

	"github.com/castafiore/tunebridge/internal/models"
)

// Adapter is the uniform three-operation search contract every song
// source implements.
type Adapter interface {
	// Platform returns the platform identifier (e.g. "local", "spotify").
	Platform() string

	// Search performs a fuzzy text search returning up to limit songs
	// starting at offset start.
	Search(ctx context.Context, query string, start, limit int) ([]models.Song, error)

	// SearchByISRC performs an exact-identifier lookup.
	SearchByISRC(ctx context.Context, isrc string) ([]models.Song, error)

	// GetByID resolves platform song ids into songs. Unknown ids are
	// omitted from the result, not errors.
	GetByID(ctx context.Context, ids []string) ([]models.Song, error)
}
