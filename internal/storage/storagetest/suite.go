// Package storagetest holds the conformance suite every store backend runs.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/groupflight/flightgroup/internal/storage"
)

// StoreSuite exercises the store port contract. Backends embed it and set
// Store (and Advance, when they can move time) in their SetupTest.
type StoreSuite struct {
	suite.Suite
	Store storage.Store
	Ctx   context.Context

	// Advance moves the backend's notion of time forward. Nil skips expiry tests.
	Advance func(d time.Duration)
}

func (s *StoreSuite) TestGetMissingIsNotFound() {
	_, err := s.Store.Get(s.Ctx, storage.TablePilots, "nobody")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreSuite) TestPutThenGet() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TablePilots, "p1", []byte(`{"id":"p1"}`), 0))

	data, err := s.Store.Get(s.Ctx, storage.TablePilots, "p1")
	s.Require().NoError(err)
	s.JSONEq(`{"id":"p1"}`, string(data))
}

func (s *StoreSuite) TestTablesAreIndependent() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TablePilots, "same", []byte(`"pilot"`), 0))
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableGroups, "same", []byte(`"group"`), 0))

	data, err := s.Store.Get(s.Ctx, storage.TablePilots, "same")
	s.Require().NoError(err)
	s.Equal(`"pilot"`, string(data))

	_, err = s.Store.Get(s.Ctx, storage.TableSessions, "same")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreSuite) TestDelete() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableSessions, "c1", []byte(`1`), 0))
	s.Require().NoError(s.Store.Delete(s.Ctx, storage.TableSessions, "c1"))

	_, err := s.Store.Get(s.Ctx, storage.TableSessions, "c1")
	s.ErrorIs(err, storage.ErrNotFound)

	// Deleting again is not an error
	s.NoError(s.Store.Delete(s.Ctx, storage.TableSessions, "c1"))
}

func (s *StoreSuite) TestUpdateCreatesWhenAbsent() {
	err := s.Store.Update(s.Ctx, storage.TableGroups, "g1", 0, func(current []byte, exists bool) ([]byte, error) {
		s.False(exists)
		s.Nil(current)
		return []byte(`"created"`), nil
	})
	s.Require().NoError(err)

	data, err := s.Store.Get(s.Ctx, storage.TableGroups, "g1")
	s.Require().NoError(err)
	s.Equal(`"created"`, string(data))
}

func (s *StoreSuite) TestUpdateSeesCurrentValue() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableGroups, "g1", []byte(`"v1"`), 0))

	err := s.Store.Update(s.Ctx, storage.TableGroups, "g1", 0, func(current []byte, exists bool) ([]byte, error) {
		s.True(exists)
		s.Equal(`"v1"`, string(current))
		return []byte(`"v2"`), nil
	})
	s.Require().NoError(err)

	data, _ := s.Store.Get(s.Ctx, storage.TableGroups, "g1")
	s.Equal(`"v2"`, string(data))
}

func (s *StoreSuite) TestUpdateAbortLeavesValue() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableGroups, "g1", []byte(`"v1"`), 0))
	abort := errors.New("abort")

	err := s.Store.Update(s.Ctx, storage.TableGroups, "g1", 0, func(current []byte, exists bool) ([]byte, error) {
		return nil, abort
	})
	s.ErrorIs(err, abort)

	data, _ := s.Store.Get(s.Ctx, storage.TableGroups, "g1")
	s.Equal(`"v1"`, string(data))
}

func (s *StoreSuite) TestConcurrentUpdatesDoNotLoseWrites() {
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableGroups, "counter", []byte{0}, 0))

	const writers = 8
	var wg sync.WaitGroup
	for range writers {
		wg.Go(func() {
			_ = s.Store.Update(s.Ctx, storage.TableGroups, "counter", 0, func(current []byte, exists bool) ([]byte, error) {
				return []byte{current[0] + 1}, nil
			})
		})
	}
	wg.Wait()

	data, err := s.Store.Get(s.Ctx, storage.TableGroups, "counter")
	s.Require().NoError(err)
	s.Equal(byte(writers), data[0])
}

func (s *StoreSuite) TestPutWithTTLExpires() {
	if s.Advance == nil {
		s.T().Skip("backend cannot advance time")
	}
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableSessions, "c1", []byte(`1`), time.Minute))

	s.Advance(30 * time.Second)
	_, err := s.Store.Get(s.Ctx, storage.TableSessions, "c1")
	s.NoError(err)

	s.Advance(time.Minute)
	_, err = s.Store.Get(s.Ctx, storage.TableSessions, "c1")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreSuite) TestUpdateRefreshesTTL() {
	if s.Advance == nil {
		s.T().Skip("backend cannot advance time")
	}
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TableGroups, "g1", []byte(`1`), time.Minute))
	s.Advance(50 * time.Second)

	err := s.Store.Update(s.Ctx, storage.TableGroups, "g1", time.Minute, func(current []byte, exists bool) ([]byte, error) {
		return current, nil
	})
	s.Require().NoError(err)

	s.Advance(50 * time.Second)
	_, err = s.Store.Get(s.Ctx, storage.TableGroups, "g1")
	s.NoError(err)
}

func (s *StoreSuite) TestZeroTTLNeverExpires() {
	if s.Advance == nil {
		s.T().Skip("backend cannot advance time")
	}
	s.Require().NoError(s.Store.Put(s.Ctx, storage.TablePilots, "p1", []byte(`1`), 0))
	s.Advance(365 * 24 * time.Hour)

	_, err := s.Store.Get(s.Ctx, storage.TablePilots, "p1")
	s.NoError(err)
}
