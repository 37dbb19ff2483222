package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/groupflight/flightgroup/internal/storage"
)

// InstrumentedStore wraps a store, counting reads per table and
// optionally failing every call with a fixed error.
type InstrumentedStore struct {
	storage.Store

	mu   sync.Mutex
	gets map[storage.Table]int
	err  error
}

// NewInstrumentedStore wraps inner
func NewInstrumentedStore(inner storage.Store) *InstrumentedStore {
	return &InstrumentedStore{Store: inner, gets: make(map[storage.Table]int)}
}

// SetError makes every subsequent call fail with err; nil restores normal behavior
func (s *InstrumentedStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Gets returns how many Get calls reached the store for a table
func (s *InstrumentedStore) Gets(table storage.Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[table]
}

func (s *InstrumentedStore) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *InstrumentedStore) Get(ctx context.Context, table storage.Table, key string) ([]byte, error) {
	s.mu.Lock()
	s.gets[table]++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, table, key)
}

func (s *InstrumentedStore) Put(ctx context.Context, table storage.Table, key string, value []byte, ttl time.Duration) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.Store.Put(ctx, table, key, value, ttl)
}

func (s *InstrumentedStore) Update(ctx context.Context, table storage.Table, key string, ttl time.Duration, fn storage.Mutator) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.Store.Update(ctx, table, key, ttl, fn)
}

func (s *InstrumentedStore) Delete(ctx context.Context, table storage.Table, key string) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.Store.Delete(ctx, table, key)
}
