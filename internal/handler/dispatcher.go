// Package handler turns inbound frames into service calls. Every frame is
// handled as an independent invocation that rebuilds caller state from the
// identity cache and never fails the transport.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/groupflight/flightgroup/internal/dependencies/clock"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
	"github.com/groupflight/flightgroup/internal/services/auth"
	"github.com/groupflight/flightgroup/internal/services/delivery"
	"github.com/groupflight/flightgroup/internal/services/flightplan"
	"github.com/groupflight/flightgroup/internal/services/group"
	"github.com/groupflight/flightgroup/internal/services/identity"
)

// Invocation is one inbound frame from one connection
type Invocation struct {
	ConnectionID model.ConnectionID
	Action       string
	Body         json.RawMessage
}

// Config holds dispatcher settings
type Config struct {
	// Timeout bounds a single invocation, like a hosted function deadline
	Timeout time.Duration
}

// DefaultConfig returns default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 29 * time.Second,
	}
}

// Dispatcher routes invocations to their handlers
type Dispatcher struct {
	auth       *auth.Service
	identity   *identity.Cache
	groups     *group.Directory
	flightplan *flightplan.Engine
	delivery   *delivery.Engine
	clock      clock.Clock
	cfg        Config
	logger     *slog.Logger
}

// New creates a new Dispatcher
func New(
	auth *auth.Service,
	identity *identity.Cache,
	groups *group.Directory,
	flightplan *flightplan.Engine,
	delivery *delivery.Engine,
	clock clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Dispatcher{
		auth:       auth,
		identity:   identity,
		groups:     groups,
		flightplan: flightplan,
		delivery:   delivery,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
}

// request carries per-invocation state through a handler
type request struct {
	conn   model.ConnectionID
	logger *slog.Logger
}

// Dispatch handles one invocation. Handler failures and panics are logged
// and swallowed; only an unrecognized action is reported, as
// protocol.ErrUnrecognizedAction, and callers treat it as non-fatal.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req := &request{
		conn: inv.ConnectionID,
		logger: d.logger.With(
			slog.String("connection_id", string(inv.ConnectionID)),
			slog.String("action", inv.Action),
		),
	}

	defer func() {
		if r := recover(); r != nil {
			req.logger.Error("panic recovered",
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = nil
		}
	}()

	msg, err := protocol.Decode(inv.Action, inv.Body)
	if errors.Is(err, protocol.ErrUnrecognizedAction) {
		req.logger.Warn("unrecognized action")
		return err
	}
	if err != nil {
		req.logger.Warn("malformed message", slog.String("error", err.Error()))
		return nil
	}

	if err := d.route(ctx, req, msg); err != nil {
		req.logger.Error("action failed", slog.String("error", err.Error()))
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, req *request, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.Connect:
		req.logger.Debug("connected")
		return nil
	case protocol.Disconnect:
		return d.auth.Disconnect(ctx, req.conn)
	case protocol.AuthRequest:
		return d.handleAuth(ctx, req, m)
	case protocol.UpdateProfileRequest:
		return d.handleUpdateProfile(ctx, req, m)
	case protocol.ChatMessage:
		return d.handleChat(ctx, req, m)
	case protocol.PilotTelemetry:
		return d.handleTelemetry(ctx, req, m)
	case protocol.WaypointsSync:
		return d.handleWaypointsSync(ctx, req, m)
	case protocol.WaypointsUpdate:
		return d.handleWaypointsUpdate(ctx, req, m)
	case protocol.PilotSelectedWaypoint:
		return d.handleSelectedWaypoint(ctx, req, m)
	case protocol.GroupInfoRequest:
		return d.handleGroupInfo(ctx, req, m)
	case protocol.JoinGroupRequest:
		return d.handleJoinGroup(ctx, req, m)
	case protocol.LeaveGroupRequest:
		return d.handleLeaveGroup(ctx, req, m)
	case protocol.PilotsStatusRequest:
		return d.handlePilotsStatus(ctx, req, m)
	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnrecognizedAction, msg)
	}
}

// caller resolves the pilot authenticated on the request's connection
func (d *Dispatcher) caller(ctx context.Context, req *request) (*model.Pilot, bool) {
	sess, ok := d.identity.ResolveSession(ctx, req.conn)
	if !ok {
		return nil, false
	}
	return d.identity.ResolvePilot(ctx, sess.PilotID)
}

// groupCaller resolves the caller and requires it to be in a group.
// Relayed messages from anyone else are dropped.
func (d *Dispatcher) groupCaller(ctx context.Context, req *request) (*model.Pilot, bool) {
	pilot, ok := d.caller(ctx, req)
	if !ok {
		req.logger.Warn("dropped message from unauthenticated connection")
		return nil, false
	}
	if !pilot.InGroup() {
		req.logger.Info("dropped message from pilot without a group", slog.String("pilot_id", string(pilot.ID)))
		return nil, false
	}
	return pilot, true
}

func (d *Dispatcher) now() protocol.Timestamp {
	return protocol.Timestamp(clock.Millis(d.clock))
}

// logStatus records a non-success outcome at a level matching its cause
func (d *Dispatcher) logStatus(req *request, code protocol.ErrorCode, err error) {
	if err == nil {
		return
	}
	level := slog.LevelInfo
	if code == protocol.CodeUnknownError {
		level = slog.LevelWarn
	}
	req.logger.Log(context.Background(), level, "request not fulfilled",
		slog.String("status", code.String()),
		slog.String("error", err.Error()),
	)
}
