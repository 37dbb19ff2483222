// Package gateway is the websocket transport: it owns live connections,
// turns inbound frames into dispatcher invocations and implements the
// delivery gateway contract for outbound pushes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/delivery"
)

// Sink is the write side of a live connection
type Sink interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

var _ Sink = (*websocket.Conn)(nil)

type registered struct {
	sink        Sink
	connectedAt time.Time
}

// Registry tracks the connections held by this process
type Registry struct {
	mu           sync.RWMutex
	conns        map[model.ConnectionID]*registered
	writeTimeout time.Duration
	logger       *slog.Logger
}

var _ delivery.Gateway = (*Registry)(nil)

// NewRegistry creates an empty Registry
func NewRegistry(writeTimeout time.Duration, logger *slog.Logger) *Registry {
	if writeTimeout <= 0 {
		writeTimeout = writeWait
	}
	return &Registry{
		conns:        make(map[model.ConnectionID]*registered),
		writeTimeout: writeTimeout,
		logger:       logger.With(slog.String("component", "gateway-registry")),
	}
}

// Register adds a connection
func (r *Registry) Register(id model.ConnectionID, sink Sink) {
	r.mu.Lock()
	r.conns[id] = &registered{sink: sink, connectedAt: time.Now()}
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		slog.String("connection_id", string(id)),
		slog.Int("total_connections", total),
	)
}

// Unregister removes a connection, reporting whether it was present
func (r *Registry) Unregister(id model.ConnectionID) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	total := len(r.conns)
	r.mu.Unlock()

	if ok {
		r.logger.Info("connection unregistered",
			slog.String("connection_id", string(id)),
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int("total_connections", total),
		)
	}
	return ok
}

// Push writes one frame to a connection. Unknown connections and broken
// sockets report delivery.ErrGone.
func (r *Registry) Push(ctx context.Context, id model.ConnectionID, payload []byte) error {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", delivery.ErrGone, id)
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	err := c.sink.Write(writeCtx, websocket.MessageText, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("write to %s: %w", id, err)
	}

	r.Unregister(id)
	_ = c.sink.Close(websocket.StatusInternalError, "write failed")
	return fmt.Errorf("%w: %s: %v", delivery.ErrGone, id, err)
}

// ConnectionCount returns the number of live connections
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes and forgets every connection. Handshakes run
// concurrently; CloseAll returns once they finish or ctx is done.
func (r *Registry) CloseAll(ctx context.Context, code websocket.StatusCode, reason string) int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[model.ConnectionID]*registered)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Go(func() { _ = c.sink.Close(code, reason) })
	}
	waitOrDone(ctx, &wg)
	return len(conns)
}

// waitOrDone blocks until wg drains or ctx is done, reporting ctx.Err()
// in the latter case
func waitOrDone(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
