package protocol

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupflight/flightgroup/internal/model"
)

func TestDecodeKnownActions(t *testing.T) {
	tests := []struct {
		action string
		body   string
		want   Inbound
	}{
		{RouteConnect, ``, Connect{}},
		{RouteDisconnect, `null`, Disconnect{}},
		{
			ActionAuthRequest,
			`{"secret":"s","pilot":{"id":"p1","name":"Alice","avatar_hash":"av","tier_hash":"th"},"group":"G1","api_version":5}`,
			AuthRequest{Secret: "s", Pilot: PilotMeta{ID: "p1", Name: "Alice", AvatarHash: "av", TierHash: "th"}, Group: "G1", APIVersion: 5},
		},
		{
			ActionChatMessage,
			`{"timestamp":1700000000000,"group":"G1","text":"hi","emergency":true}`,
			ChatMessage{Timestamp: 1700000000000, Group: "G1", Text: "hi", Emergency: true},
		},
		{
			ActionWaypointsUpdate,
			`{"hash":"abc","action":"delete","waypoint":{"id":"w1","name":"Start","latlng":[[1.5,2.5]]}}`,
			WaypointsUpdate{Hash: "abc", Op: WaypointDelete, Waypoint: model.Waypoint{ID: "w1", Name: "Start", Geo: []model.LatLng{{1.5, 2.5}}}},
		},
		{
			ActionPilotsStatusRequest,
			`{"pilot_ids":["a","b"]}`,
			PilotsStatusRequest{PilotIDs: []model.PilotID{"a", "b"}},
		},
		{ActionLeaveGroupRequest, `{}`, LeaveGroupRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := Decode(tt.action, json.RawMessage(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.action, got.Action())
		})
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	for _, action := range []string{RouteDefault, "chatLogRequest", ""} {
		_, err := Decode(action, json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrUnrecognizedAction, action)
	}
}

func TestDecodeMalformedBody(t *testing.T) {
	_, err := Decode(ActionJoinGroupRequest, json.RawMessage(`{"group":7}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnrecognizedAction)
}

func TestEncodeWrapsBodyInEnvelope(t *testing.T) {
	frame, err := Encode(ActionJoinGroupResponse, JoinGroupResponse{Status: CodeSuccess, Group: "G1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"joinGroupResponse","body":{"status":0,"group":"G1"}}`, string(frame))

	env, err := ParseEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, ActionJoinGroupResponse, env.Action)
	assert.JSONEq(t, `{"status":0,"group":"G1"}`, string(env.Body))
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	assert.Error(t, err)
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeSuccess},
		{model.ErrNameTooShort, CodeMissingData},
		{model.ErrMissingData, CodeMissingData},
		{fmt.Errorf("lookup: %w", model.ErrPilotNotFound), CodeInvalidID},
		{model.ErrGroupNotFound, CodeInvalidID},
		{model.ErrSecretMismatch, CodeInvalidSecretID},
		{model.ErrNotGroupMember, CodeDeniedGroupAccess},
		{model.ErrNotInGroup, CodeNoOp},
		{model.ErrAlreadyInGroup, CodeNoOp},
		{model.ErrPilotIDTaken, CodeUnknownError},
		{fmt.Errorf("redis down"), CodeUnknownError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeFor(tt.err), "%v", tt.err)
	}
}

func TestErrorCodeNames(t *testing.T) {
	assert.Equal(t, "denied_group_access", CodeDeniedGroupAccess.String())
	assert.Equal(t, "no_op", CodeNoOp.String())
	assert.Equal(t, "unknown_error", ErrorCode(42).String())
}
