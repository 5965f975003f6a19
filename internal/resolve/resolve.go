// Package resolve maps candidate restaurant names to place ids by trigram
// similarity.
package resolve

import (
	"context"
	"sync"
)

// DefaultThreshold is the minimum similarity for a match. A candidate matches
// only when its similarity is strictly greater.
const DefaultThreshold = 0.6

// Resolver finds the place a normalized name refers to.
type Resolver interface {
	// Resolve returns the best matching place id. ok is false when no place
	// clears the threshold.
	Resolve(ctx context.Context, nameNorm string) (placeID string, ok bool, err error)
}

type memoEntry struct {
	placeID string
	ok      bool
}

// Cached memoizes another resolver. Misses are remembered as well as hits;
// errors are not. Safe for concurrent use.
type Cached struct {
	next Resolver

	mu    sync.Mutex
	memo  map[string]memoEntry
	calls int
}

// NewCached wraps next with a memo.
func NewCached(next Resolver) *Cached {
	return &Cached{next: next, memo: make(map[string]memoEntry)}
}

// Resolve implements Resolver.
func (c *Cached) Resolve(ctx context.Context, nameNorm string) (string, bool, error) {
	c.mu.Lock()
	if e, found := c.memo[nameNorm]; found {
		c.mu.Unlock()
		return e.placeID, e.ok, nil
	}
	c.mu.Unlock()

	placeID, ok, err := c.next.Resolve(ctx, nameNorm)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	c.memo[nameNorm] = memoEntry{placeID: placeID, ok: ok}
	c.calls++
	c.mu.Unlock()
	return placeID, ok, nil
}

// Lookups returns how many names were passed through to the wrapped resolver.
func (c *Cached) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
