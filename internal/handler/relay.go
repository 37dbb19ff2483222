package handler

import (
	"context"
	"log/slog"

	"github.com/groupflight/flightgroup/internal/protocol"
)

func (d *Dispatcher) handleChat(ctx context.Context, req *request, m protocol.ChatMessage) error {
	pilot, ok := d.groupCaller(ctx, req)
	if !ok {
		return nil
	}
	if m.Group != "" && m.Group != pilot.GroupID {
		req.logger.Warn("dropped chat addressed to another group",
			slog.String("pilot_id", string(pilot.ID)),
			slog.String("group_id", string(m.Group)),
		)
		return nil
	}

	m.Group = pilot.GroupID
	m.PilotID = pilot.ID
	if m.Emergency {
		req.logger.Info("emergency message", slog.String("pilot_id", string(pilot.ID)))
	}
	d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionChatMessage, m, req.conn)
	return nil
}

func (d *Dispatcher) handleTelemetry(ctx context.Context, req *request, m protocol.PilotTelemetry) error {
	pilot, ok := d.groupCaller(ctx, req)
	if !ok {
		return nil
	}
	m.PilotID = pilot.ID
	d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionPilotTelemetry, m, req.conn)
	return nil
}
