package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
)

func (d *Dispatcher) handleGroupInfo(ctx context.Context, req *request, m protocol.GroupInfoRequest) error {
	reply := func(resp protocol.GroupInfoResponse) {
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionGroupInfoResponse, resp)
	}

	pilot, ok := d.caller(ctx, req)
	if !ok {
		reply(protocol.GroupInfoResponse{Status: protocol.CodeInvalidID, Group: m.Group})
		return nil
	}
	groupID := m.Group
	if groupID == "" {
		groupID = pilot.GroupID
	}
	if groupID == "" {
		reply(protocol.GroupInfoResponse{Status: protocol.CodeInvalidID})
		return nil
	}

	g, err := d.groups.GetGroupSnapshot(ctx, groupID)
	if err != nil {
		code := protocol.CodeFor(err)
		d.logStatus(req, code, err)
		reply(protocol.GroupInfoResponse{Status: code, Group: groupID})
		return nil
	}
	if !g.HasMember(pilot.ID) {
		d.logStatus(req, protocol.CodeDeniedGroupAccess, model.ErrNotGroupMember)
		reply(protocol.GroupInfoResponse{Status: protocol.CodeDeniedGroupAccess, Group: groupID})
		return nil
	}

	pilots := make([]protocol.PilotMeta, 0, len(g.Members))
	for _, id := range g.Members {
		member, ok := d.identity.ResolvePilot(ctx, id)
		if !ok {
			continue
		}
		pilots = append(pilots, protocol.MetaFromPilot(member))
	}

	reply(protocol.GroupInfoResponse{
		Status:     protocol.CodeSuccess,
		Group:      groupID,
		Pilots:     pilots,
		Waypoints:  g.Waypoints,
		Selections: g.Selections,
	})
	return nil
}

func (d *Dispatcher) handleJoinGroup(ctx context.Context, req *request, m protocol.JoinGroupRequest) error {
	reply := func(code protocol.ErrorCode, group model.GroupID) {
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionJoinGroupResponse, protocol.JoinGroupResponse{
			Status: code,
			Group:  group,
		})
	}

	pilot, ok := d.caller(ctx, req)
	if !ok {
		reply(protocol.CodeInvalidID, "")
		return nil
	}
	previous := pilot.GroupID
	if m.Group != "" && m.Group == previous {
		reply(protocol.CodeNoOp, previous)
		return nil
	}

	joined, err := d.groups.AddPilotToGroup(ctx, pilot.ID, m.Group)
	if err != nil {
		code := protocol.CodeFor(err)
		d.logStatus(req, code, err)
		reply(code, "")
		return nil
	}
	reply(protocol.CodeSuccess, joined)

	req.logger.Info("pilot joined group",
		slog.String("pilot_id", string(pilot.ID)),
		slog.String("group_id", string(joined)),
		slog.String("previous_group_id", string(previous)),
	)

	if previous != "" && previous != joined {
		d.delivery.SendToGroup(ctx, previous, protocol.ActionPilotLeftGroup, protocol.PilotLeftGroup{
			PilotID:  pilot.ID,
			NewGroup: joined,
		}, req.conn)
	}
	d.delivery.SendToGroup(ctx, joined, protocol.ActionPilotJoinedGroup, protocol.PilotJoinedGroup{
		Pilot: protocol.MetaFromPilot(pilot),
	}, req.conn)
	return nil
}

func (d *Dispatcher) handleLeaveGroup(ctx context.Context, req *request, m protocol.LeaveGroupRequest) error {
	reply := func(code protocol.ErrorCode, group model.GroupID) {
		d.delivery.SendToOne(ctx, req.conn, protocol.ActionLeaveGroupResponse, protocol.LeaveGroupResponse{
			Status: code,
			Group:  group,
		})
	}

	pilot, ok := d.caller(ctx, req)
	if !ok {
		reply(protocol.CodeInvalidID, "")
		return nil
	}

	left, err := d.groups.RemovePilotFromGroup(ctx, pilot.ID)
	if errors.Is(err, model.ErrNotInGroup) {
		reply(protocol.CodeNoOp, "")
		return nil
	}
	if err != nil {
		code := protocol.CodeFor(err)
		d.logStatus(req, code, err)
		reply(code, "")
		return nil
	}
	reply(protocol.CodeSuccess, left)

	req.logger.Info("pilot left group",
		slog.String("pilot_id", string(pilot.ID)),
		slog.String("group_id", string(left)),
		slog.Bool("prompt_split", m.PromptSplit),
	)

	d.delivery.SendToGroup(ctx, left, protocol.ActionPilotLeftGroup, protocol.PilotLeftGroup{
		PilotID: pilot.ID,
	}, req.conn)
	return nil
}
