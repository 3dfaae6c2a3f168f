// Package board maintains the in-memory read model served to the tracking
// board UI. It tails the compacted snapshot topic: the latest record per
// subscription is the current state, a tombstone removes it. Records are
// never mutated after insertion, so readers may hold items while the
// consumer goroutine applies newer snapshots.
package board

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianrx/rxsub/internal/domain/subscription"
)

// Item is one row of the board view: the record plus the derived status,
// its display metadata, and the date driving its position.
type Item struct {
	Subscription       *subscription.Subscription `json:"subscription"`
	Derived            subscription.Derivation    `json:"derived"`
	Meta               subscription.StatusMeta    `json:"meta"`
	NextActionableDate *time.Time                 `json:"next_actionable_date,omitempty"`
}

// Stats summarizes what the board has consumed.
type Stats struct {
	Subscriptions     int       `json:"subscriptions"`
	AppliedSnapshots  int64     `json:"applied_snapshots"`
	AppliedTombstones int64     `json:"applied_tombstones"`
	LastAppliedAt     time.Time `json:"last_applied_at"`
}

// Board is the ordered subscription read model. A single consumer
// goroutine calls Apply; any number of HTTP readers call Items and Get.
type Board struct {
	logger *zap.Logger

	mu    sync.RWMutex
	recs  map[string]*subscription.Subscription
	order []string
	view  []Item
	stats Stats
}

// New creates an empty board.
func New(logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		logger: logger,
		recs:   make(map[string]*subscription.Subscription),
	}
}

// Apply ingests one snapshot topic record. A nil value is a tombstone and
// removes the subscription; anything else replaces its current state. The
// view is reordered on every apply so readers always see current order.
func (b *Board) Apply(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("snapshot record has no key")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if value == nil {
		b.remove(key)
		b.stats.AppliedTombstones++
	} else {
		sub := &subscription.Subscription{}
		if err := json.Unmarshal(value, sub); err != nil {
			return fmt.Errorf("unmarshal snapshot %s: %w", key, err)
		}
		if _, known := b.recs[key]; !known {
			b.order = append(b.order, key)
		}
		b.recs[key] = sub
		b.stats.AppliedSnapshots++
	}

	b.stats.LastAppliedAt = time.Now().UTC()
	b.rebuild()

	b.logger.Debug("snapshot applied",
		zap.String("subscription_id", key),
		zap.Bool("tombstone", value == nil),
		zap.Int("subscriptions", len(b.recs)))
	return nil
}

// Items returns the current view, most actionable first.
func (b *Board) Items() []Item {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Item, len(b.view))
	copy(out, b.view)
	return out
}

// Get returns the view item for one subscription.
func (b *Board) Get(id string) (Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, item := range b.view {
		if item.Subscription.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// Stats returns consumption counters for the stats endpoint.
func (b *Board) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := b.stats
	stats.Subscriptions = len(b.recs)
	return stats
}

// remove drops a subscription from the model. Callers hold the write lock.
func (b *Board) remove(key string) {
	if _, known := b.recs[key]; !known {
		return
	}
	delete(b.recs, key)
	for i, id := range b.order {
		if id == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// rebuild recomputes the ordered view. Insertion order is the stable-sort
// base, so subscriptions with equal sort keys keep arrival order. Callers
// hold the write lock.
func (b *Board) rebuild() {
	subs := make([]*subscription.Subscription, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.recs[id])
	}

	ordered := subscription.Order(subs)

	view := make([]Item, 0, len(ordered))
	for _, sub := range ordered {
		item := Item{
			Subscription: sub,
			Derived:      sub.Derive(),
		}
		item.Meta = item.Derived.Status.Meta()
		if date, open := sub.NextActionableDate(); open {
			d := date
			item.NextActionableDate = &d
		}
		view = append(view, item)
	}
	b.view = view
}
