package recompute

import (
	"context"
	"sync"
	"time"

	"github.com/forklore/placescore/internal/aggregate"
	"github.com/forklore/placescore/internal/mention"
)

// InMemorySource is an in-memory implementation of Source for testing.
type InMemorySource struct {
	mu       sync.RWMutex
	mentions []mention.Mention
	err      error
}

// NewInMemorySource creates a source seeded with the given mentions.
func NewInMemorySource(ms ...mention.Mention) *InMemorySource {
	return &InMemorySource{mentions: ms}
}

// LoadMentions returns a copy of the seeded mentions.
func (s *InMemorySource) LoadMentions(ctx context.Context) ([]mention.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	result := make([]mention.Mention, len(s.mentions))
	copy(result, s.mentions)
	return result, nil
}

// Add appends mentions to the source.
func (s *InMemorySource) Add(ms ...mention.Mention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mentions = append(s.mentions, ms...)
}

// SetError makes subsequent loads fail with err. Pass nil to clear.
func (s *InMemorySource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// InMemoryStore is an in-memory implementation of Store for testing.
type InMemoryStore struct {
	mu         sync.RWMutex
	snapshot   aggregate.Snapshot
	computedAt time.Time
	replaces   int
	err        error
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshot: aggregate.Snapshot{}}
}

// ReplaceAggregates swaps the stored snapshot for a copy of snapshot.
func (s *InMemoryStore) ReplaceAggregates(ctx context.Context, snapshot aggregate.Snapshot, computedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	next := make(aggregate.Snapshot, len(snapshot))
	for k, v := range snapshot {
		next[k] = v
	}
	s.snapshot = next
	s.computedAt = computedAt
	s.replaces++
	return nil
}

// Get returns the stored aggregate for an entity.
func (s *InMemoryStore) Get(entityID string) (aggregate.EntityAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.snapshot[entityID]
	return agg, ok
}

// Snapshot returns a copy of the stored snapshot.
func (s *InMemoryStore) Snapshot() aggregate.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(aggregate.Snapshot, len(s.snapshot))
	for k, v := range s.snapshot {
		result[k] = v
	}
	return result
}

// ComputedAt returns the reference instant of the stored snapshot.
func (s *InMemoryStore) ComputedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computedAt
}

// Replaces returns how many times the snapshot was replaced.
func (s *InMemoryStore) Replaces() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replaces
}

// SetError makes subsequent replaces fail with err. Pass nil to clear.
func (s *InMemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SlowSource wraps a Source with an artificial delay for testing timeouts.
// The delay honors context cancellation.
type SlowSource struct {
	src   Source
	delay time.Duration
}

// NewSlowSource creates a new slow source wrapper.
func NewSlowSource(src Source, delay time.Duration) *SlowSource {
	return &SlowSource{src: src, delay: delay}
}

// LoadMentions returns the wrapped source's mentions after a delay.
func (s *SlowSource) LoadMentions(ctx context.Context) ([]mention.Mention, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.src.LoadMentions(ctx)
}
