// Package protocol defines the websocket wire format: the action envelope,
// the closed set of inbound messages and the outbound response bodies.
package protocol

import (
	"encoding/json"
	"fmt"
)

// APIVersion is the protocol generation this server speaks
const APIVersion = 5.0

// KeyedDocumentVersion is the first protocol generation that addresses
// waypoints by id. Older clients use index-addressed edits and must not be
// sent waypoint traffic.
const KeyedDocumentVersion = 5.0

// Envelope is the frame shape used in both directions
type Envelope struct {
	Action string          `json:"action"`
	Body   json.RawMessage `json:"body"`
}

// Encode marshals body inside an envelope for the given action
func Encode(action string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", action, err)
	}
	return json.Marshal(Envelope{Action: action, Body: raw})
}

// ParseEnvelope decodes a raw frame
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	return env, nil
}
