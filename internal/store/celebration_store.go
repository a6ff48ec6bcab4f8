package store

import (
	"context"
	"sort"
	"sync"

	"starchart/internal/celebration"
)

// CelebrationSnapshot holds the active signal for each category
type CelebrationSnapshot struct {
	Version uint64
	Active  map[celebration.Category]celebration.Signal
}

// CelebrationStore holds the celebrations waiting to be shown. It is a
// celebration.Sink; a new signal replaces the one active in its category.
type CelebrationStore struct {
	*Publisher[CelebrationSnapshot]

	mu sync.Mutex
}

var _ celebration.Sink = (*CelebrationStore)(nil)

// NewCelebrationStore creates a store with nothing to show
func NewCelebrationStore() *CelebrationStore {
	return &CelebrationStore{Publisher: NewPublisher(CelebrationSnapshot{})}
}

// Present makes signal the active one for its category
func (s *CelebrationStore) Present(_ context.Context, signal celebration.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.copyActive()
	active[signal.Category] = signal
	s.publish(func(v uint64) CelebrationSnapshot {
		return CelebrationSnapshot{Version: v, Active: active}
	})
	return nil
}

// Dismiss clears a category. Dismissing an empty category publishes nothing.
func (s *CelebrationStore) Dismiss(category celebration.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Snapshot().Active[category]; !ok {
		return
	}
	active := s.copyActive()
	delete(active, category)
	s.publish(func(v uint64) CelebrationSnapshot {
		return CelebrationSnapshot{Version: v, Active: active}
	})
}

func (s *CelebrationStore) copyActive() map[celebration.Category]celebration.Signal {
	active := make(map[celebration.Category]celebration.Signal, len(s.Snapshot().Active)+1)
	for k, v := range s.Snapshot().Active {
		active[k] = v
	}
	return active
}

// Active returns the signal waiting in a category
func (s *CelebrationStore) Active(category celebration.Category) (celebration.Signal, bool) {
	sig, ok := s.Snapshot().Active[category]
	return sig, ok
}

// All returns every waiting signal ordered by category
func (s *CelebrationStore) All() []celebration.Signal {
	active := s.Snapshot().Active
	out := make([]celebration.Signal, 0, len(active))
	for _, sig := range active {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
