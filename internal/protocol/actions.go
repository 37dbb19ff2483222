package protocol

// Transport lifecycle routes
const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"
)

// Client requests and their responses
const (
	ActionAuthRequest           = "authRequest"
	ActionAuthResponse          = "authResponse"
	ActionUpdateProfile         = "updateProfile"
	ActionUpdateProfileResponse = "updateProfileResponse"
	ActionGroupInfoRequest      = "groupInfoRequest"
	ActionGroupInfoResponse     = "groupInfoResponse"
	ActionJoinGroupRequest      = "joinGroupRequest"
	ActionJoinGroupResponse     = "joinGroupResponse"
	ActionLeaveGroupRequest     = "leaveGroupRequest"
	ActionLeaveGroupResponse    = "leaveGroupResponse"
	ActionPilotsStatusRequest   = "pilotsStatusRequest"
	ActionPilotsStatusResponse  = "pilotsStatusResponse"
)

// Bidirectional messages relayed to the rest of a group
const (
	ActionChatMessage           = "chatMessage"
	ActionPilotTelemetry        = "pilotTelemetry"
	ActionWaypointsSync         = "waypointsSync"
	ActionWaypointsUpdate       = "waypointsUpdate"
	ActionPilotSelectedWaypoint = "pilotSelectedWaypoint"
)

// Server notifications
const (
	ActionPilotJoinedGroup = "pilotJoinedGroup"
	ActionPilotLeftGroup   = "pilotLeftGroup"
)
