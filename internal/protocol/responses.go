package protocol

import "github.com/groupflight/flightgroup/internal/model"

// AuthResponse answers an AuthRequest
type AuthResponse struct {
	Status             ErrorCode     `json:"status"`
	Secret             string        `json:"secret"`
	PilotID            model.PilotID `json:"pilot_id"`
	ProfileFingerprint string        `json:"profile_fingerprint"`
	Group              model.GroupID `json:"group"`
	Tier               string        `json:"tier,omitempty"`
	APIVersion         float64       `json:"api_version"`
}

// StatusResponse is the body of responses that only carry a status
type StatusResponse struct {
	Status ErrorCode `json:"status"`
}

// GroupInfoResponse answers a GroupInfoRequest
type GroupInfoResponse struct {
	Status     ErrorCode                          `json:"status"`
	Group      model.GroupID                      `json:"group"`
	Pilots     []PilotMeta                        `json:"pilots"`
	Waypoints  model.Document                     `json:"waypoints"`
	Selections map[model.PilotID]model.WaypointID `json:"selections"`
}

// JoinGroupResponse answers a JoinGroupRequest
type JoinGroupResponse struct {
	Status ErrorCode     `json:"status"`
	Group  model.GroupID `json:"group"`
}

// LeaveGroupResponse answers a LeaveGroupRequest. Group is the group the
// pilot was in, empty for no_op.
type LeaveGroupResponse struct {
	Status ErrorCode     `json:"status"`
	Group  model.GroupID `json:"group"`
}

// PilotsStatusResponse answers a PilotsStatusRequest
type PilotsStatusResponse struct {
	Status       ErrorCode              `json:"status"`
	PilotsOnline map[model.PilotID]bool `json:"pilots_online"`
}

// PilotJoinedGroup tells a group about a new or updated member profile
type PilotJoinedGroup struct {
	Pilot PilotMeta `json:"pilot"`
}

// PilotLeftGroup tells a group a member moved away. NewGroup is empty when
// the pilot left without joining another group.
type PilotLeftGroup struct {
	PilotID  model.PilotID `json:"pilot_id"`
	NewGroup model.GroupID `json:"new_group"`
}
