package model

import (
	"maps"
	"slices"
)

// WaypointID identifies a waypoint within a group's document
type WaypointID string

// LatLng is a coordinate pair encoded on the wire as [lat, lng]
type LatLng [2]float64

// Lat returns the latitude component
func (p LatLng) Lat() float64 { return p[0] }

// Lng returns the longitude component
func (p LatLng) Lng() float64 { return p[1] }

// Waypoint is a named point or path segment in the shared flight plan
type Waypoint struct {
	ID       WaypointID `json:"id"`
	Name     string     `json:"name"`
	Geo      []LatLng   `json:"latlng"`
	Optional bool       `json:"optional,omitempty"`
	Icon     string     `json:"icon,omitempty"`
	Color    string     `json:"color,omitempty"`
	Length   *float64   `json:"length,omitempty"`
}

// Clone returns a deep copy of the waypoint
func (w Waypoint) Clone() Waypoint {
	out := w
	out.Geo = slices.Clone(w.Geo)
	if w.Length != nil {
		l := *w.Length
		out.Length = &l
	}
	return out
}

// Document is the shared waypoint set keyed by waypoint id.
// Iteration order carries no meaning; use SortedIDs for a canonical order.
type Document map[WaypointID]Waypoint

// Clone returns a deep copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for id, wp := range d {
		out[id] = wp.Clone()
	}
	return out
}

// SortedIDs returns the waypoint ids in ascending order
func (d Document) SortedIDs() []WaypointID {
	return slices.Sorted(maps.Keys(d))
}
