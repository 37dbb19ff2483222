// Package flightplan keeps each group's shared waypoint document in sync:
// full replacement, fingerprint-checked incremental edits and per-pilot
// selection cursors.
package flightplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
)

// Groups is the part of the group directory the engine writes through
type Groups interface {
	GetGroupSnapshot(ctx context.Context, id model.GroupID) (*model.Group, error)
	UpdateGroup(ctx context.Context, id model.GroupID, fn func(g *model.Group) error) (*model.Group, error)
}

// Outcome describes what ApplyUpdate did with an edit
type Outcome int

const (
	// OutcomeApplied means the edit was persisted and should be relayed
	OutcomeApplied Outcome = iota
	// OutcomeNoOp means nothing was written and nothing should be relayed
	OutcomeNoOp
	// OutcomeDesync means the sender's expected fingerprint did not match;
	// the stored document is unchanged and the sender needs a full resync
	OutcomeDesync
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoOp:
		return "no_op"
	case OutcomeDesync:
		return "desync"
	}
	return "unknown"
}

// UpdateResult reports the result of an incremental edit. For a desync,
// Document and Fingerprint describe the authoritative stored document.
type UpdateResult struct {
	Outcome     Outcome
	Document    model.Document
	Fingerprint string
}

// Engine applies waypoint document changes to groups
type Engine struct {
	groups Groups
	logger *slog.Logger
}

// New creates a new flight plan Engine
func New(groups Groups, logger *slog.Logger) *Engine {
	return &Engine{
		groups: groups,
		logger: logger.With(slog.String("component", "flightplan-engine")),
	}
}

// FullSync replaces the group's document verbatim, last writer wins, and
// returns the fingerprint of what was stored
func (e *Engine) FullSync(ctx context.Context, groupID model.GroupID, doc model.Document) (string, error) {
	if doc == nil {
		doc = model.Document{}
	}
	for id, wp := range doc {
		if id == "" || wp.ID != id {
			return "", fmt.Errorf("%w: key %q does not match id %q", model.ErrInvalidWaypoint, id, wp.ID)
		}
	}

	_, err := e.groups.UpdateGroup(ctx, groupID, func(g *model.Group) error {
		g.Waypoints = doc.Clone()
		return nil
	})
	if err != nil {
		return "", err
	}
	return Fingerprint(doc), nil
}

// desyncError aborts a group update and carries the untouched document out
type desyncError struct {
	backup model.Document
}

func (e *desyncError) Error() string { return model.ErrDesync.Error() }
func (e *desyncError) Unwrap() error { return model.ErrDesync }

// ApplyUpdate applies one incremental edit, keeping it only when the
// resulting document has the fingerprint the sender expects
func (e *Engine) ApplyUpdate(ctx context.Context, groupID model.GroupID, action protocol.WaypointAction, wp model.Waypoint, expected string) (*UpdateResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", model.ErrInvalidWaypoint, action)
	}
	if action != protocol.WaypointNone && wp.ID == "" {
		return nil, fmt.Errorf("%w: missing id", model.ErrInvalidWaypoint)
	}

	if action == protocol.WaypointNone {
		g, err := e.groups.GetGroupSnapshot(ctx, groupID)
		if err != nil {
			return nil, err
		}
		hash := Fingerprint(g.Waypoints)
		if hash != expected {
			e.logDesync(groupID, hash, expected)
			return &UpdateResult{Outcome: OutcomeDesync, Document: g.Waypoints, Fingerprint: hash}, nil
		}
		return &UpdateResult{Outcome: OutcomeNoOp, Document: g.Waypoints, Fingerprint: hash}, nil
	}

	updated, err := e.groups.UpdateGroup(ctx, groupID, func(g *model.Group) error {
		backup := g.Waypoints.Clone()
		switch action {
		case protocol.WaypointUpdate:
			g.Waypoints[wp.ID] = wp.Clone()
		case protocol.WaypointDelete:
			delete(g.Waypoints, wp.ID)
		}
		if hash := Fingerprint(g.Waypoints); hash != expected {
			e.logDesync(groupID, hash, expected)
			return &desyncError{backup: backup}
		}
		return nil
	})

	var desync *desyncError
	if errors.As(err, &desync) {
		return &UpdateResult{
			Outcome:     OutcomeDesync,
			Document:    desync.backup,
			Fingerprint: Fingerprint(desync.backup),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		Outcome:     OutcomeApplied,
		Document:    updated.Waypoints,
		Fingerprint: expected,
	}, nil
}

// SelectWaypoint records the pilot's selection, last writer wins. An empty
// waypoint id clears it.
func (e *Engine) SelectWaypoint(ctx context.Context, groupID model.GroupID, pilotID model.PilotID, waypointID model.WaypointID) error {
	_, err := e.groups.UpdateGroup(ctx, groupID, func(g *model.Group) error {
		if !g.HasMember(pilotID) {
			return model.ErrNotGroupMember
		}
		if waypointID == "" {
			delete(g.Selections, pilotID)
		} else {
			g.Selections[pilotID] = waypointID
		}
		return nil
	})
	return err
}

func (e *Engine) logDesync(groupID model.GroupID, actual, expected string) {
	e.logger.Warn("waypoint document desync",
		slog.String("group_id", string(groupID)),
		slog.String("fingerprint", actual),
		slog.String("expected", expected),
	)
}
