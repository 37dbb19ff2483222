package model

import (
	"slices"
	"time"
)

// GroupID is the short token identifying a group
type GroupID string

// Group is a shared session container: membership, one waypoint document
// and the per-pilot waypoint selections.
type Group struct {
	ID         GroupID                `json:"id"`
	Members    []PilotID              `json:"members"` // kept sorted, no duplicates
	Waypoints  Document               `json:"waypoints"`
	Selections map[PilotID]WaypointID `json:"selections"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// NewGroup returns an empty group with initialized collections
func NewGroup(id GroupID, now time.Time) *Group {
	return &Group{
		ID:         id,
		Members:    []PilotID{},
		Waypoints:  Document{},
		Selections: map[PilotID]WaypointID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasMember reports whether the pilot is in the member set
func (g *Group) HasMember(id PilotID) bool {
	_, found := slices.BinarySearch(g.Members, id)
	return found
}

// AddMember inserts the pilot into the member set, returning false if already present
func (g *Group) AddMember(id PilotID) bool {
	i, found := slices.BinarySearch(g.Members, id)
	if found {
		return false
	}
	g.Members = slices.Insert(g.Members, i, id)
	return true
}

// RemoveMember drops the pilot from the member set and its selection,
// returning false if it was not a member
func (g *Group) RemoveMember(id PilotID) bool {
	delete(g.Selections, id)
	i, found := slices.BinarySearch(g.Members, id)
	if !found {
		return false
	}
	g.Members = slices.Delete(g.Members, i, i+1)
	return true
}

// Normalize fills nil collections left behind by decoding older records
func (g *Group) Normalize() {
	if g.Members == nil {
		g.Members = []PilotID{}
	}
	slices.Sort(g.Members)
	g.Members = slices.Compact(g.Members)
	if g.Waypoints == nil {
		g.Waypoints = Document{}
	}
	if g.Selections == nil {
		g.Selections = map[PilotID]WaypointID{}
	}
}
