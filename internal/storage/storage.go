// Package storage defines the persistence boundary for subscription records.
package storage

import (
	"context"
	"errors"

	"github.com/meridianrx/rxsub/internal/domain/subscription"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a create collided with an existing record.
var ErrAlreadyExists = errors.New("record already exists")

// Store persists subscription records. Writes replace the whole record:
// the last writer wins and no version token is checked.
type Store interface {
	// Create inserts a new record. It returns ErrAlreadyExists when the
	// identifier is already taken.
	Create(ctx context.Context, sub *subscription.Subscription) error

	// Get loads one record by identifier. It returns ErrNotFound when no
	// record matches.
	Get(ctx context.Context, id string) (*subscription.Subscription, error)

	// Put replaces an existing record. It returns ErrNotFound when no
	// record matches.
	Put(ctx context.Context, sub *subscription.Subscription) error

	// Delete removes a record. It returns ErrNotFound when no record
	// matches.
	Delete(ctx context.Context, id string) error

	// List returns every record in insertion order.
	List(ctx context.Context) ([]*subscription.Subscription, error)
}
