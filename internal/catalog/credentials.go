package catalog

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/castafiore/tunebridge/internal/shared"
)

// CredentialCache holds a process-wide session token with a
// refresh-on-401 policy. A refresh is shared by all waiters through a
// single-flight group, so concurrent 401s trigger one refresh rather
// than a storm.
type CredentialCache struct {
	mu    sync.Mutex
	token string

	group singleflight.Group
	fetch func(ctx context.Context) (string, error)
}

// NewCredentialCache creates a cache around a token-fetching function.
func NewCredentialCache(fetch func(ctx context.Context) (string, error)) *CredentialCache {
	return &CredentialCache{fetch: fetch}
}

// Token returns the cached token, fetching one on first use.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token != "" {
		return token, nil
	}
	return c.Refresh(ctx, "")
}

// Refresh exchanges a stale token for a fresh one. If another caller
// already refreshed past the stale token, the cached value is returned
// without a second round trip.
func (c *CredentialCache) Refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.token != stale {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	value, err, _ := c.group.Do("refresh", func() (any, error) {
		token, err := c.fetch(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
		}

		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}

	return value.(string), nil
}

// Invalidate drops the cached token so the next caller fetches anew.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
