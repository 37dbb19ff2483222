package protocol

import (
	"github.com/groupflight/flightgroup/internal/model"
)

// Timestamp is milliseconds since the Unix epoch, UTC
type Timestamp int64

// PilotMeta is the public profile of a pilot
type PilotMeta struct {
	ID         model.PilotID `json:"id"`
	Name       string        `json:"name"`
	AvatarHash string        `json:"avatar_hash"`
	Tier       string        `json:"tier,omitempty"`

	// TierHash is only sent by clients at auth; it keys the tier lookup
	TierHash string `json:"tier_hash,omitempty"`
}

// MetaFromPilot returns the public profile fields of a pilot record
func MetaFromPilot(p *model.Pilot) PilotMeta {
	return PilotMeta{
		ID:         p.ID,
		Name:       p.Name,
		AvatarHash: p.AvatarHash,
		Tier:       p.Tier,
	}
}

// GeoPosition mirrors the browser GeolocationCoordinates object
type GeoPosition struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         float64  `json:"accuracy"`
	Altitude         *float64 `json:"altitude"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy"`
	Heading          *float64 `json:"heading"`
	Speed            *float64 `json:"speed"`
}

// Telemetry is one position and fuel report
type Telemetry struct {
	GeoPos   GeoPosition `json:"geoPos"`
	Fuel     float64     `json:"fuel"`      // liters
	FuelRate float64     `json:"fuel_rate"` // liters per hour
}

// WaypointAction is the kind of incremental edit in a waypointsUpdate
type WaypointAction string

const (
	WaypointUpdate WaypointAction = "update"
	WaypointDelete WaypointAction = "delete"
	WaypointNone   WaypointAction = "none"
)

// Valid reports whether the action is one the server understands
func (a WaypointAction) Valid() bool {
	switch a {
	case WaypointUpdate, WaypointDelete, WaypointNone:
		return true
	}
	return false
}

// Inbound is the closed set of messages a client may send. The unexported
// method keeps other packages from adding cases.
type Inbound interface {
	Action() string
	inbound()
}

// Connect is the transport open event
type Connect struct{}

// Disconnect is the transport close event
type Disconnect struct{}

// AuthRequest registers a new pilot or reauthenticates an existing one
type AuthRequest struct {
	Secret     string        `json:"secret"`
	Pilot      PilotMeta     `json:"pilot"`
	Group      model.GroupID `json:"group"`
	APIVersion float64       `json:"api_version"`
}

// UpdateProfileRequest changes a pilot's public profile
type UpdateProfileRequest struct {
	Pilot  PilotMeta `json:"pilot"`
	Secret string    `json:"secret"`
}

// ChatMessage is a group text message
type ChatMessage struct {
	Timestamp Timestamp     `json:"timestamp"`
	Group     model.GroupID `json:"group"`
	PilotID   model.PilotID `json:"pilot_id"`
	Text      string        `json:"text"`
	Emergency bool          `json:"emergency"`
}

// PilotTelemetry is a position report relayed to the group
type PilotTelemetry struct {
	Timestamp Timestamp     `json:"timestamp"`
	PilotID   model.PilotID `json:"pilot_id"`
	Telemetry Telemetry     `json:"telemetry"`
}

// WaypointsSync carries a complete waypoint document
type WaypointsSync struct {
	Timestamp Timestamp      `json:"timestamp"`
	Hash      string         `json:"hash"`
	Waypoints model.Document `json:"waypoints"`
}

// WaypointsUpdate carries one incremental edit and the fingerprint the
// sender expects the document to have after applying it
type WaypointsUpdate struct {
	Timestamp Timestamp      `json:"timestamp"`
	Hash      string         `json:"hash"`
	Op        WaypointAction `json:"action"`
	Waypoint  model.Waypoint `json:"waypoint"`
}

// PilotSelectedWaypoint moves a pilot's selection cursor
type PilotSelectedWaypoint struct {
	PilotID    model.PilotID    `json:"pilot_id"`
	WaypointID model.WaypointID `json:"waypoint_id"`
}

// GroupInfoRequest asks for a group's members and document
type GroupInfoRequest struct {
	Group model.GroupID `json:"group"`
}

// JoinGroupRequest moves the caller into a group
type JoinGroupRequest struct {
	Group model.GroupID `json:"group"`
}

// LeaveGroupRequest detaches the caller from its group
type LeaveGroupRequest struct {
	PromptSplit bool `json:"prompt_split"`
}

// PilotsStatusRequest asks which pilots are online
type PilotsStatusRequest struct {
	PilotIDs []model.PilotID `json:"pilot_ids"`
}

func (Connect) Action() string               { return RouteConnect }
func (Disconnect) Action() string            { return RouteDisconnect }
func (AuthRequest) Action() string           { return ActionAuthRequest }
func (UpdateProfileRequest) Action() string  { return ActionUpdateProfile }
func (ChatMessage) Action() string           { return ActionChatMessage }
func (PilotTelemetry) Action() string        { return ActionPilotTelemetry }
func (WaypointsSync) Action() string         { return ActionWaypointsSync }
func (WaypointsUpdate) Action() string       { return ActionWaypointsUpdate }
func (PilotSelectedWaypoint) Action() string { return ActionPilotSelectedWaypoint }
func (GroupInfoRequest) Action() string      { return ActionGroupInfoRequest }
func (JoinGroupRequest) Action() string      { return ActionJoinGroupRequest }
func (LeaveGroupRequest) Action() string     { return ActionLeaveGroupRequest }
func (PilotsStatusRequest) Action() string   { return ActionPilotsStatusRequest }

func (Connect) inbound()               {}
func (Disconnect) inbound()            {}
func (AuthRequest) inbound()           {}
func (UpdateProfileRequest) inbound()  {}
func (ChatMessage) inbound()           {}
func (PilotTelemetry) inbound()        {}
func (WaypointsSync) inbound()         {}
func (WaypointsUpdate) inbound()       {}
func (PilotSelectedWaypoint) inbound() {}
func (GroupInfoRequest) inbound()      {}
func (JoinGroupRequest) inbound()      {}
func (LeaveGroupRequest) inbound()     {}
func (PilotsStatusRequest) inbound()   {}
