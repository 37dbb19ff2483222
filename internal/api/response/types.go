package response

import (
	"time"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/flightplan"
)

// Health is the response for the health endpoint
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// Pilot is a group member in API responses
type Pilot struct {
	ID     model.PilotID `json:"id"`
	Name   string        `json:"name"`
	Tier   string        `json:"tier,omitempty"`
	Online bool          `json:"online"`
}

// PilotFromModel converts a model.Pilot to a response Pilot
func PilotFromModel(p *model.Pilot) Pilot {
	return Pilot{
		ID:     p.ID,
		Name:   p.Name,
		Tier:   p.Tier,
		Online: p.IsOnline(),
	}
}

// Group summarises a group for operators
type Group struct {
	ID          model.GroupID `json:"id"`
	Pilots      []Pilot       `json:"pilots"`
	Waypoints   int           `json:"waypoints"`
	Fingerprint string        `json:"fingerprint"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// GroupFromModel converts a group snapshot and its resolved members
func GroupFromModel(g *model.Group, members []*model.Pilot) Group {
	pilots := make([]Pilot, 0, len(members))
	for _, p := range members {
		pilots = append(pilots, PilotFromModel(p))
	}
	return Group{
		ID:          g.ID,
		Pilots:      pilots,
		Waypoints:   len(g.Waypoints),
		Fingerprint: flightplan.Fingerprint(g.Waypoints),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}
