package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
	"github.com/groupflight/flightgroup/internal/services/delivery"
	"github.com/groupflight/flightgroup/internal/services/flightplan"
)

// keyedOnly keeps waypoint traffic away from clients that still address
// waypoints by index
var keyedOnly = delivery.WithMinProtocolVersion(protocol.KeyedDocumentVersion)

func (d *Dispatcher) handleWaypointsSync(ctx context.Context, req *request, m protocol.WaypointsSync) error {
	pilot, ok := d.groupCaller(ctx, req)
	if !ok {
		return nil
	}

	hash, err := d.flightplan.FullSync(ctx, pilot.GroupID, m.Waypoints)
	if errors.Is(err, model.ErrInvalidWaypoint) {
		req.logger.Warn("rejected waypoint document", slog.String("error", err.Error()))
		return nil
	}
	if err != nil {
		return err
	}

	if m.Waypoints == nil {
		m.Waypoints = model.Document{}
	}
	m.Hash = hash
	d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionWaypointsSync, m, req.conn, keyedOnly)
	return nil
}

func (d *Dispatcher) handleWaypointsUpdate(ctx context.Context, req *request, m protocol.WaypointsUpdate) error {
	pilot, ok := d.groupCaller(ctx, req)
	if !ok {
		return nil
	}

	res, err := d.flightplan.ApplyUpdate(ctx, pilot.GroupID, m.Op, m.Waypoint, m.Hash)
	if errors.Is(err, model.ErrInvalidWaypoint) {
		req.logger.Warn("rejected waypoint update", slog.String("error", err.Error()))
		return nil
	}
	if err != nil {
		return err
	}

	switch res.Outcome {
	case flightplan.OutcomeDesync:
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionWaypointsSync, protocol.WaypointsSync{
			Timestamp: d.now(),
			Hash:      res.Fingerprint,
			Waypoints: res.Document,
		})
	case flightplan.OutcomeApplied:
		d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionWaypointsUpdate, m, req.conn, keyedOnly)
	case flightplan.OutcomeNoOp:
	}
	return nil
}

func (d *Dispatcher) handleSelectedWaypoint(ctx context.Context, req *request, m protocol.PilotSelectedWaypoint) error {
	pilot, ok := d.groupCaller(ctx, req)
	if !ok {
		return nil
	}

	m.PilotID = pilot.ID
	err := d.flightplan.SelectWaypoint(ctx, pilot.GroupID, pilot.ID, m.WaypointID)
	if errors.Is(err, model.ErrNotGroupMember) {
		req.logger.Warn("dropped selection from non-member", slog.String("pilot_id", string(pilot.ID)))
		return nil
	}
	if err != nil {
		return err
	}
	d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionPilotSelectedWaypoint, m, req.conn, keyedOnly)
	return nil
}
