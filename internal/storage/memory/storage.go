package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/groupflight/flightgroup/internal/dependencies/clock"
	"github.com/groupflight/flightgroup/internal/storage"
)

type itemKey struct {
	table storage.Table
	key   string
}

type item struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Storage is an in-memory implementation of the store port
type Storage struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[itemKey]item
}

// New creates a new in-memory storage instance using the system clock
func New() *Storage {
	return NewWithClock(clock.New())
}

// NewWithClock creates an in-memory storage whose expiry follows the given clock
func NewWithClock(clk clock.Clock) *Storage {
	return &Storage{
		clock: clk,
		items: make(map[itemKey]item),
	}
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

func (s *Storage) Get(ctx context.Context, table storage.Table, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(itemKey{table, key})
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(it.value), nil
}

func (s *Storage) Put(ctx context.Context, table storage.Table, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey{table, key}] = s.newItem(value, ttl)
	return nil
}

func (s *Storage) Update(ctx context.Context, table storage.Table, key string, ttl time.Duration, fn storage.Mutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := itemKey{table, key}
	var current []byte
	it, exists := s.lookup(k)
	if exists {
		current = slices.Clone(it.value)
	}

	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	s.items[k] = s.newItem(next, ttl)
	return nil
}

func (s *Storage) Delete(ctx context.Context, table storage.Table, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemKey{table, key})
	return nil
}

func (s *Storage) Close() error {
	return nil
}

// Len returns the number of live items in a table
func (s *Storage) Len(table storage.Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.items {
		if k.table != table {
			continue
		}
		if _, ok := s.lookup(k); ok {
			n++
		}
	}
	return n
}

// lookup returns a live item, dropping it if expired. Caller holds mu.
func (s *Storage) lookup(k itemKey) (item, bool) {
	it, ok := s.items[k]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && !s.clock.Now().Before(it.expiresAt) {
		delete(s.items, k)
		return item{}, false
	}
	return it, true
}

func (s *Storage) newItem(value []byte, ttl time.Duration) item {
	it := item{value: slices.Clone(value)}
	if ttl > 0 {
		it.expiresAt = s.clock.Now().Add(ttl)
	}
	return it
}
