// Package delivery pushes frames to single connections and fans them out
// to the live members of a group.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
	"github.com/groupflight/flightgroup/internal/services/identity"
)

// ErrGone is reported by a Gateway when the connection no longer exists
var ErrGone = errors.New("delivery: connection gone")

// Gateway pushes a raw frame to one connection
type Gateway interface {
	Push(ctx context.Context, id model.ConnectionID, payload []byte) error
}

// Groups looks up group membership for fan-out
type Groups interface {
	GetGroupSnapshot(ctx context.Context, id model.GroupID) (*model.Group, error)
}

// SendOption adjusts a group send
type SendOption func(*sendOptions)

type sendOptions struct {
	minVersion float64
}

// WithMinProtocolVersion skips members whose client declared an older
// protocol version. Members that declared none are still delivered to.
func WithMinProtocolVersion(v float64) SendOption {
	return func(o *sendOptions) {
		o.minVersion = v
	}
}

// Engine delivers notifications. Delivery failures are logged and never
// returned; a notification must not fail the request that caused it.
type Engine struct {
	gateway  Gateway
	groups   Groups
	identity *identity.Cache
	logger   *slog.Logger
}

// New creates a new delivery Engine
func New(gateway Gateway, groups Groups, identity *identity.Cache, logger *slog.Logger) *Engine {
	return &Engine{
		gateway:  gateway,
		groups:   groups,
		identity: identity,
		logger:   logger.With(slog.String("component", "delivery")),
	}
}

// SendToOne pushes an action to a single connection, retrying once on the
// pilot's current connection if the target has gone away
func (e *Engine) SendToOne(ctx context.Context, conn model.ConnectionID, action string, body any) {
	payload, err := protocol.Encode(action, body)
	if err != nil {
		e.logger.Error("encode failed", slog.String("action", action), slog.String("error", err.Error()))
		return
	}

	var pilotID model.PilotID
	if sess, ok := e.identity.ResolveSession(ctx, conn); ok {
		pilotID = sess.PilotID
	}
	e.deliver(ctx, conn, pilotID, action, payload)
}

// SendToGroup pushes an action to every live member of the group except
// the excluded connection. Members are delivered to concurrently and the
// call returns once every delivery has finished.
func (e *Engine) SendToGroup(ctx context.Context, groupID model.GroupID, action string, body any, exclude model.ConnectionID, opts ...SendOption) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	g, err := e.groups.GetGroupSnapshot(ctx, groupID)
	if err != nil {
		e.logger.Warn("fan-out skipped",
			slog.String("group_id", string(groupID)),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return
	}

	payload, err := protocol.Encode(action, body)
	if err != nil {
		e.logger.Error("encode failed", slog.String("action", action), slog.String("error", err.Error()))
		return
	}

	var wg sync.WaitGroup
	for _, member := range g.Members {
		wg.Go(func() {
			e.sendToMember(ctx, groupID, member, action, payload, exclude, o)
		})
	}
	wg.Wait()
}

func (e *Engine) sendToMember(ctx context.Context, groupID model.GroupID, member model.PilotID, action string, payload []byte, exclude model.ConnectionID, o sendOptions) {
	pilot, ok := e.identity.ResolvePilot(ctx, member)
	if !ok {
		return
	}

	if pilot.GroupID != groupID {
		// Member set and pilot record disagree; do not trust either cached copy
		e.logger.Info("stale membership observed",
			slog.String("group_id", string(groupID)),
			slog.String("pilot_id", string(member)),
			slog.String("pilot_group_id", string(pilot.GroupID)),
		)
		e.identity.InvalidatePilot(member)
		if pilot.IsOnline() {
			e.identity.InvalidateSession(pilot.ConnectionID)
		}
	}

	if !pilot.IsOnline() || pilot.ConnectionID == exclude {
		return
	}
	if o.minVersion > 0 && pilot.ProtocolVersion > 0 && pilot.ProtocolVersion < o.minVersion {
		return
	}
	e.deliver(ctx, pilot.ConnectionID, member, action, payload)
}

// deliver pushes payload, allowing exactly one retry when the connection is
// gone and the pilot has since reconnected elsewhere
func (e *Engine) deliver(ctx context.Context, conn model.ConnectionID, pilotID model.PilotID, action string, payload []byte) {
	err := e.gateway.Push(ctx, conn, payload)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrGone) {
		e.logFailure(conn, action, err)
		return
	}

	e.identity.InvalidateSession(conn)
	if pilotID == "" {
		e.logFailure(conn, action, err)
		return
	}
	e.identity.InvalidatePilot(pilotID)

	pilot, ok := e.identity.RefreshPilot(ctx, pilotID)
	if !ok || !pilot.IsOnline() || pilot.ConnectionID == conn {
		e.logFailure(conn, action, err)
		return
	}

	if err := e.gateway.Push(ctx, pilot.ConnectionID, payload); err != nil {
		e.logFailure(pilot.ConnectionID, action, err)
	}
}

func (e *Engine) logFailure(conn model.ConnectionID, action string, err error) {
	e.logger.Warn("delivery failed",
		slog.String("connection_id", string(conn)),
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
}
