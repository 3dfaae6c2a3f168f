// Package memory provides an in-memory Store for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/meridianrx/rxsub/internal/domain/subscription"
	"github.com/meridianrx/rxsub/internal/storage"
)

// Store keeps subscription records in process memory. Records are deep
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu    sync.RWMutex
	recs  map[string]*subscription.Subscription
	order []string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{recs: make(map[string]*subscription.Subscription)}
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[sub.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.recs[sub.ID] = sub.Clone()
	s.order = append(s.order, sub.ID)
	return nil
}

// Get loads one record by identifier.
func (s *Store) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

// Put replaces an existing record.
func (s *Store) Put(ctx context.Context, sub *subscription.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[sub.ID]; !ok {
		return storage.ErrNotFound
	}
	s.recs[sub.ID] = sub.Clone()
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.recs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns every record in insertion order.
func (s *Store) List(ctx context.Context) ([]*subscription.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*subscription.Subscription, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.recs[id].Clone())
	}
	return out, nil
}
