package model

import "time"

// PilotID is the stable public identifier of a pilot
type PilotID string

// ConnectionID identifies one live transport connection
type ConnectionID string

// Pilot is a registered identity, independent of any single connection
type Pilot struct {
	ID         PilotID `json:"id"`
	SecretHash string  `json:"secret_hash,omitempty"` // bcrypt hash of the private credential
	Name       string  `json:"name"`
	AvatarHash string  `json:"avatar_hash,omitempty"`
	Tier       string  `json:"tier,omitempty"`

	GroupID      GroupID      `json:"group_id,omitempty"`      // empty when not in a group
	ConnectionID ConnectionID `json:"connection_id,omitempty"` // empty when offline

	// ProtocolVersion is the api_version the pilot's client declared at auth
	ProtocolVersion float64 `json:"protocol_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOnline reports whether the pilot has a live connection on record
func (p *Pilot) IsOnline() bool {
	return p.ConnectionID != ""
}

// InGroup reports whether the pilot's record places it in a group
func (p *Pilot) InGroup() bool {
	return p.GroupID != ""
}
