package model

import "time"

// ConnectionSession maps a live connection to the pilot authenticated on it
type ConnectionSession struct {
	ConnectionID ConnectionID `json:"connection_id"`
	PilotID      PilotID      `json:"pilot_id"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Expired reports whether the session lifetime has elapsed at now
func (s *ConnectionSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
