package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/groupflight/flightgroup/internal/dependencies/random"
	"github.com/groupflight/flightgroup/internal/handler"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time between keepalive pings
	pingPeriod = 30 * time.Second

	// Largest inbound frame accepted
	readLimit = 1 << 20
)

// Dispatcher handles one inbound invocation
type Dispatcher interface {
	Dispatch(ctx context.Context, inv handler.Invocation) error
}

// Config holds websocket server settings
type Config struct {
	WriteTimeout   time.Duration
	PingPeriod     time.Duration
	ReadLimit      int64
	OriginPatterns []string
}

// DefaultConfig returns default websocket server configuration
func DefaultConfig() Config {
	return Config{
		WriteTimeout: writeWait,
		PingPeriod:   pingPeriod,
		ReadLimit:    readLimit,
	}
}

// Server accepts websocket connections and feeds their frames to the
// dispatcher
type Server struct {
	registry   *Registry
	dispatcher Dispatcher
	random     random.Random
	cfg        Config
	logger     *slog.Logger

	// invocations run on baseCtx so they outlive the socket that sent them
	baseCtx  context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
	sessions sync.WaitGroup
}

// NewServer creates a websocket Server
func NewServer(registry *Registry, dispatcher Dispatcher, random random.Random, cfg Config, logger *slog.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaults.PingPeriod
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		registry:   registry,
		dispatcher: dispatcher,
		random:     random,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "gateway-server")),
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
// $disconnect is dispatched only after every frame the connection sent has
// been handled.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.admit() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	id := model.ConnectionID(s.random.UUID())
	s.registry.Register(id, conn)
	if s.isClosing() {
		// CloseAll may already have run without this connection
		s.registry.Unregister(id)
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.dispatch(s.baseCtx, id, protocol.RouteConnect, nil)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.keepalive(ctx, conn)

	var pending sync.WaitGroup
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.logClose(id, err)
			break
		}
		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			s.logger.Warn("unparseable frame",
				slog.String("connection_id", string(id)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !s.track(&pending, func() { s.dispatch(s.baseCtx, id, env.Action, env.Body) }) {
			break
		}
	}

	s.registry.Unregister(id)
	pending.Wait()

	// the session must be released even when shutdown has cancelled baseCtx
	disconnectCtx, cancelDisconnect := context.WithTimeout(context.WithoutCancel(s.baseCtx), s.cfg.WriteTimeout)
	s.dispatch(disconnectCtx, id, protocol.RouteDisconnect, nil)
	cancelDisconnect()

	if s.isClosing() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closed")
}

// ConnectionCount returns the number of live connections
func (s *Server) ConnectionCount() int {
	return s.registry.ConnectionCount()
}

// Shutdown stops accepting frames, waits for in-flight invocations, closes
// every connection and waits for their disconnects to be dispatched
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := waitOrDone(ctx, &s.inflight)
	s.cancel()

	closed := s.registry.CloseAll(ctx, websocket.StatusGoingAway, "server shutting down")
	if werr := waitOrDone(ctx, &s.sessions); err == nil {
		err = werr
	}
	s.logger.Info("websocket gateway stopped", slog.Int("closed_connections", closed))
	return err
}

// admit counts a new connection unless the server is shutting down
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// track runs fn in the background unless the server is shutting down.
// pending follows the invocations of a single connection.
func (s *Server) track(pending *sync.WaitGroup, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	pending.Add(1)
	s.inflight.Go(func() {
		defer pending.Done()
		fn()
	})
	return true
}

func (s *Server) dispatch(ctx context.Context, id model.ConnectionID, action string, body []byte) {
	err := s.dispatcher.Dispatch(ctx, handler.Invocation{
		ConnectionID: id,
		Action:       action,
		Body:         body,
	})
	if err != nil && !errors.Is(err, protocol.ErrUnrecognizedAction) {
		s.logger.Error("dispatch failed",
			slog.String("connection_id", string(id)),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) logClose(id model.ConnectionID, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		s.logger.Debug("connection closed", slog.String("connection_id", string(id)))
		return
	}
	s.logger.Info("connection lost",
		slog.String("connection_id", string(id)),
		slog.String("error", err.Error()),
	)
}
