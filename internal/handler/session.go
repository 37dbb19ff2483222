package handler

import (
	"context"
	"log/slog"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
	"github.com/groupflight/flightgroup/internal/services/auth"
)

func (d *Dispatcher) handleAuth(ctx context.Context, req *request, m protocol.AuthRequest) error {
	res, err := d.auth.Authenticate(ctx, auth.Credentials{
		ConnectionID:   req.conn,
		PilotID:        m.Pilot.ID,
		Secret:         m.Secret,
		Name:           m.Pilot.Name,
		AvatarHash:     m.Pilot.AvatarHash,
		TierHash:       m.Pilot.TierHash,
		RequestedGroup: m.Group,
		APIVersion:     m.APIVersion,
	})
	if err != nil {
		code := protocol.CodeFor(err)
		d.logStatus(req, code, err)
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionAuthResponse, protocol.AuthResponse{
			Status:     code,
			APIVersion: protocol.APIVersion,
		})
		return nil
	}

	pilot := res.Pilot
	d.delivery.SendToOne(ctx, req.conn, protocol.ActionAuthResponse, protocol.AuthResponse{
		Status:             protocol.CodeSuccess,
		Secret:             res.Secret,
		PilotID:            pilot.ID,
		ProfileFingerprint: res.ProfileFingerprint,
		Group:              pilot.GroupID,
		Tier:               pilot.Tier,
		APIVersion:         protocol.APIVersion,
	})

	if res.PreviousGroup != "" && res.PreviousGroup != pilot.GroupID {
		d.delivery.SendToGroup(ctx, res.PreviousGroup, protocol.ActionPilotLeftGroup, protocol.PilotLeftGroup{
			PilotID:  pilot.ID,
			NewGroup: pilot.GroupID,
		}, req.conn)
	}
	d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionPilotJoinedGroup, protocol.PilotJoinedGroup{
		Pilot: protocol.MetaFromPilot(pilot),
	}, req.conn)
	return nil
}

func (d *Dispatcher) handleUpdateProfile(ctx context.Context, req *request, m protocol.UpdateProfileRequest) error {
	pilot, err := d.auth.UpdateProfile(ctx, auth.ProfileUpdate{
		PilotID:    m.Pilot.ID,
		Secret:     m.Secret,
		Name:       m.Pilot.Name,
		AvatarHash: m.Pilot.AvatarHash,
	})
	code := protocol.CodeFor(err)
	d.logStatus(req, code, err)
	d.delivery.SendToOne(ctx, req.conn, protocol.ActionUpdateProfileResponse, protocol.StatusResponse{Status: code})
	if err != nil || !pilot.InGroup() {
		return nil
	}

	d.delivery.SendToGroup(ctx, pilot.GroupID, protocol.ActionPilotJoinedGroup, protocol.PilotJoinedGroup{
		Pilot: protocol.MetaFromPilot(pilot),
	}, req.conn)
	return nil
}

func (d *Dispatcher) handlePilotsStatus(ctx context.Context, req *request, m protocol.PilotsStatusRequest) error {
	if _, ok := d.caller(ctx, req); !ok {
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionPilotsStatusResponse, protocol.PilotsStatusResponse{
			Status:       protocol.CodeFor(model.ErrSessionNotFound),
			PilotsOnline: map[model.PilotID]bool{},
		})
		return nil
	}

	online, err := d.auth.PilotsOnline(ctx, m.PilotIDs)
	if err != nil {
		code := protocol.CodeFor(err)
		d.logStatus(req, code, err)
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionPilotsStatusResponse, protocol.PilotsStatusResponse{
			Status:       code,
			PilotsOnline: map[model.PilotID]bool{},
		})
		return nil
	}

	req.logger.Debug("pilots status", slog.Int("requested", len(m.PilotIDs)))
	d.delivery.SendToOne(ctx, req.conn, protocol.ActionPilotsStatusResponse, protocol.PilotsStatusResponse{
		Status:       protocol.CodeSuccess,
		PilotsOnline: online,
	})
	return nil
}
