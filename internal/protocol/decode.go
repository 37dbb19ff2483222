package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnrecognizedAction is returned by Decode for action names outside the
// inbound set, including the $default route
var ErrUnrecognizedAction = errors.New("unrecognized action")

var decoders = map[string]func(json.RawMessage) (Inbound, error){
	RouteConnect:                func(json.RawMessage) (Inbound, error) { return Connect{}, nil },
	RouteDisconnect:             func(json.RawMessage) (Inbound, error) { return Disconnect{}, nil },
	ActionAuthRequest:           decodeAs[AuthRequest],
	ActionUpdateProfile:         decodeAs[UpdateProfileRequest],
	ActionChatMessage:           decodeAs[ChatMessage],
	ActionPilotTelemetry:        decodeAs[PilotTelemetry],
	ActionWaypointsSync:         decodeAs[WaypointsSync],
	ActionWaypointsUpdate:       decodeAs[WaypointsUpdate],
	ActionPilotSelectedWaypoint: decodeAs[PilotSelectedWaypoint],
	ActionGroupInfoRequest:      decodeAs[GroupInfoRequest],
	ActionJoinGroupRequest:      decodeAs[JoinGroupRequest],
	ActionLeaveGroupRequest:     decodeAs[LeaveGroupRequest],
	ActionPilotsStatusRequest:   decodeAs[PilotsStatusRequest],
}

// Decode turns an action name and raw body into a typed inbound message.
// A missing or null body decodes to the zero value of the message.
func Decode(action string, body json.RawMessage) (Inbound, error) {
	decode, ok := decoders[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedAction, action)
	}
	return decode(body)
}

func decodeAs[T Inbound](body json.RawMessage) (Inbound, error) {
	var msg T
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return msg, nil
	}
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Action(), err)
	}
	return msg, nil
}
