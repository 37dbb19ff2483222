// Package identity is the read-through cache over pilot and connection
// session records that lets each invocation rebuild who is connected, and
// to which group, without trusting any previous invocation's memory.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groupflight/flightgroup/internal/dependencies/clock"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/storage"
)

// Config holds cache and record lifetime settings
type Config struct {
	// Freshness is how long a fetched record may be served from memory
	Freshness time.Duration

	// PilotTTL is the store expiry of pilot records, refreshed on every write
	PilotTTL time.Duration
}

// DefaultConfig returns default identity cache configuration
func DefaultConfig() Config {
	return Config{
		Freshness: 30 * time.Second,
		PilotTTL:  30 * 24 * time.Hour,
	}
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache resolves connection sessions and pilots. Values handed out are
// copies; callers may modify them freely.
type Cache struct {
	store  storage.Store
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[model.ConnectionID]entry[model.ConnectionSession]
	pilots   map[model.PilotID]entry[model.Pilot]
}

// New creates a new identity Cache
func New(store storage.Store, clock clock.Clock, cfg Config, logger *slog.Logger) *Cache {
	defaults := DefaultConfig()
	if cfg.Freshness <= 0 {
		cfg.Freshness = defaults.Freshness
	}
	if cfg.PilotTTL <= 0 {
		cfg.PilotTTL = defaults.PilotTTL
	}
	return &Cache{
		store:    store,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "identity-cache")),
		sessions: make(map[model.ConnectionID]entry[model.ConnectionSession]),
		pilots:   make(map[model.PilotID]entry[model.Pilot]),
	}
}

// ResolveSession returns the session for a connection. Store failures and
// expired sessions both report absent.
func (c *Cache) ResolveSession(ctx context.Context, id model.ConnectionID) (*model.ConnectionSession, bool) {
	if id == "" {
		return nil, false
	}
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.sessions[id]
	c.mu.Unlock()
	if ok && c.fresh(e.fetchedAt, now) {
		if e.value.Expired(now) {
			return nil, false
		}
		s := e.value
		return &s, true
	}

	s, err := storage.GetJSON[model.ConnectionSession](ctx, c.store, storage.TableSessions, string(id))
	if err != nil {
		c.dropSession(id)
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("session lookup failed",
				slog.String("connection_id", string(id)),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	if s.Expired(now) {
		c.dropSession(id)
		return nil, false
	}

	c.mu.Lock()
	c.sessions[id] = entry[model.ConnectionSession]{value: *s, fetchedAt: now}
	c.mu.Unlock()
	return s, true
}

// ResolvePilot returns the pilot record, from memory while fresh
func (c *Cache) ResolvePilot(ctx context.Context, id model.PilotID) (*model.Pilot, bool) {
	if id == "" {
		return nil, false
	}
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.pilots[id]
	c.mu.Unlock()
	if ok && c.fresh(e.fetchedAt, now) {
		p := e.value
		return &p, true
	}
	return c.fetchPilot(ctx, id)
}

// RefreshPilot reads the pilot from the store, bypassing any cached copy
func (c *Cache) RefreshPilot(ctx context.Context, id model.PilotID) (*model.Pilot, bool) {
	if id == "" {
		return nil, false
	}
	c.InvalidatePilot(id)
	return c.fetchPilot(ctx, id)
}

// InvalidateSession drops any cached session for the connection
func (c *Cache) InvalidateSession(id model.ConnectionID) {
	c.dropSession(id)
}

// InvalidatePilot drops any cached pilot record
func (c *Cache) InvalidatePilot(id model.PilotID) {
	c.mu.Lock()
	delete(c.pilots, id)
	c.mu.Unlock()
}

// PushPilot writes the whole pilot record and caches the written value
func (c *Cache) PushPilot(ctx context.Context, p *model.Pilot) error {
	if err := storage.PutJSON(ctx, c.store, storage.TablePilots, string(p.ID), p, c.cfg.PilotTTL); err != nil {
		c.InvalidatePilot(p.ID)
		return fmt.Errorf("push pilot %s: %w", p.ID, err)
	}
	c.cachePilot(p)
	return nil
}

// UpdatePilot atomically rewrites the pilot record through fn. fn receives
// nil when no record exists. On success the written value is cached and
// returned; on any failure the cached copy is dropped.
func (c *Cache) UpdatePilot(ctx context.Context, id model.PilotID, fn func(current *model.Pilot) (*model.Pilot, error)) (*model.Pilot, error) {
	written, err := storage.UpdateJSON(ctx, c.store, storage.TablePilots, string(id), c.cfg.PilotTTL, fn)
	if err != nil {
		c.InvalidatePilot(id)
		return nil, err
	}
	c.cachePilot(written)
	out := *written
	return &out, nil
}

// SetSession persists a session, expiring with its ExpiresAt, and caches it
func (c *Cache) SetSession(ctx context.Context, s *model.ConnectionSession) error {
	now := c.clock.Now()
	ttl := s.ExpiresAt.Sub(now)
	if s.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return fmt.Errorf("set session %s: already expired", s.ConnectionID)
	}
	if err := storage.PutJSON(ctx, c.store, storage.TableSessions, string(s.ConnectionID), s, ttl); err != nil {
		c.dropSession(s.ConnectionID)
		return fmt.Errorf("set session %s: %w", s.ConnectionID, err)
	}
	c.mu.Lock()
	c.sessions[s.ConnectionID] = entry[model.ConnectionSession]{value: *s, fetchedAt: now}
	c.mu.Unlock()
	return nil
}

// DeleteSession removes the session from the store and the cache
func (c *Cache) DeleteSession(ctx context.Context, id model.ConnectionID) error {
	c.dropSession(id)
	if err := c.store.Delete(ctx, storage.TableSessions, string(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (c *Cache) fetchPilot(ctx context.Context, id model.PilotID) (*model.Pilot, bool) {
	p, err := storage.GetJSON[model.Pilot](ctx, c.store, storage.TablePilots, string(id))
	if err != nil {
		c.InvalidatePilot(id)
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("pilot lookup failed",
				slog.String("pilot_id", string(id)),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	c.cachePilot(p)
	return p, true
}

func (c *Cache) cachePilot(p *model.Pilot) {
	now := c.clock.Now()
	c.mu.Lock()
	c.pilots[p.ID] = entry[model.Pilot]{value: *p, fetchedAt: now}
	c.mu.Unlock()
}

func (c *Cache) dropSession(id model.ConnectionID) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

func (c *Cache) fresh(fetchedAt, now time.Time) bool {
	return now.Sub(fetchedAt) < c.cfg.Freshness
}
