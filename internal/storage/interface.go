package storage

import (
	"context"
	"errors"
	"time"
)

// Table names a keyspace in the persistent store
type Table string

// Tables used by the backend
const (
	TablePilots   Table = "pilots"
	TableGroups   Table = "groups"
	TableSessions Table = "sessions"
)

var (
	// ErrNotFound is returned when a key is absent or has expired
	ErrNotFound = errors.New("storage: item not found")
	// ErrConflict is returned when an update kept losing races for the same key
	ErrConflict = errors.New("storage: concurrent update conflict")
)

// Mutator computes a replacement value from the current one. exists is false
// and current is nil when the key is absent. Returning an error aborts the
// update without writing; the error is passed back to the caller of Update.
type Mutator func(current []byte, exists bool) ([]byte, error)

// Store is the narrow persistent-store port. Each operation is atomic for
// its single key; there are no multi-key transactions.
type Store interface {
	// Get returns the stored value or ErrNotFound
	Get(ctx context.Context, table Table, key string) ([]byte, error)

	// Put writes the value, replacing any existing one. A zero ttl means no expiry.
	Put(ctx context.Context, table Table, key string, value []byte, ttl time.Duration) error

	// Update atomically applies fn to the value at key and writes the result
	// with the given ttl.
	Update(ctx context.Context, table Table, key string, ttl time.Duration, fn Mutator) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, table Table, key string) error

	// Close releases backend resources
	Close() error
}
