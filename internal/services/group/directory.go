// Package group is the group directory: membership, lazy group creation and
// the group record that carries the shared waypoint document.
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupflight/flightgroup/internal/dependencies/clock"
	"github.com/groupflight/flightgroup/internal/dependencies/random"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/identity"
	"github.com/groupflight/flightgroup/internal/storage"
)

const (
	// IDLength is the length of minted group ids
	IDLength = 6
	// maxMintAttempts bounds retries when a minted id is already taken
	maxMintAttempts = 8
)

var errGroupExists = errors.New("group id already taken")

// Config holds group directory settings
type Config struct {
	// TTL is the store expiry of a group, refreshed on every write to it
	TTL time.Duration
}

// DefaultConfig returns default group configuration
func DefaultConfig() Config {
	return Config{
		TTL: 72 * time.Hour,
	}
}

// Directory owns group membership and the group records that hold the
// shared waypoint document. Pilot and group records are updated
// independently; a pilot's group field may briefly disagree with the
// group's member set.
type Directory struct {
	store    storage.Store
	identity *identity.Cache
	clock    clock.Clock
	random   random.Random
	cfg      Config
	logger   *slog.Logger
}

// New creates a new group Directory
func New(
	store storage.Store,
	identity *identity.Cache,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Directory {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Directory{
		store:    store,
		identity: identity,
		clock:    clock,
		random:   random,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "group-directory")),
	}
}

// GroupExists reports whether a live group record exists
func (d *Directory) GroupExists(ctx context.Context, id model.GroupID) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := d.store.Get(ctx, storage.TableGroups, string(id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureGroup returns requested after creating it if needed, or mints and
// creates a fresh group when requested is empty
func (d *Directory) EnsureGroup(ctx context.Context, requested model.GroupID) (model.GroupID, error) {
	if requested != "" {
		_, err := storage.UpdateJSON(ctx, d.store, storage.TableGroups, string(requested), d.cfg.TTL,
			func(current *model.Group) (*model.Group, error) {
				if current == nil {
					d.logger.Info("group created", slog.String("group_id", string(requested)))
					return model.NewGroup(requested, d.clock.Now()), nil
				}
				current.Normalize()
				return current, nil
			})
		if err != nil {
			return "", fmt.Errorf("ensure group %s: %w", requested, err)
		}
		return requested, nil
	}

	for range maxMintAttempts {
		id := model.GroupID(d.random.String(IDLength, random.Alphanumeric))
		_, err := storage.UpdateJSON(ctx, d.store, storage.TableGroups, string(id), d.cfg.TTL,
			func(current *model.Group) (*model.Group, error) {
				if current != nil {
					return nil, errGroupExists
				}
				return model.NewGroup(id, d.clock.Now()), nil
			})
		if errors.Is(err, errGroupExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create group: %w", err)
		}
		d.logger.Info("group created", slog.String("group_id", string(id)))
		return id, nil
	}
	return "", fmt.Errorf("create group: no free id after %d attempts", maxMintAttempts)
}

// AddPilotToGroup moves the pilot into target, creating target if needed or
// minting a group when target is empty. Detaching from the previous group
// and attaching to the new one are separate store updates.
func (d *Directory) AddPilotToGroup(ctx context.Context, pilotID model.PilotID, target model.GroupID) (model.GroupID, error) {
	pilot, ok := d.identity.RefreshPilot(ctx, pilotID)
	if !ok {
		return "", model.ErrPilotNotFound
	}

	if pilot.InGroup() && pilot.GroupID != target {
		if err := d.detach(ctx, pilot.ID, pilot.GroupID); err != nil {
			return "", err
		}
	}

	target, err := d.EnsureGroup(ctx, target)
	if err != nil {
		return "", err
	}

	_, err = d.UpdateGroup(ctx, target, func(g *model.Group) error {
		g.AddMember(pilot.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("attach %s to %s: %w", pilot.ID, target, err)
	}

	_, err = d.identity.UpdatePilot(ctx, pilot.ID, func(current *model.Pilot) (*model.Pilot, error) {
		if current == nil {
			return nil, model.ErrPilotNotFound
		}
		current.GroupID = target
		current.UpdatedAt = d.clock.Now()
		return current, nil
	})
	if err != nil {
		return "", fmt.Errorf("record group on %s: %w", pilot.ID, err)
	}

	d.logger.Info("pilot joined group",
		slog.String("pilot_id", string(pilot.ID)),
		slog.String("group_id", string(target)),
	)
	return target, nil
}

// RemovePilotFromGroup detaches the pilot from its current group and
// returns the group it left
func (d *Directory) RemovePilotFromGroup(ctx context.Context, pilotID model.PilotID) (model.GroupID, error) {
	pilot, ok := d.identity.RefreshPilot(ctx, pilotID)
	if !ok {
		return "", model.ErrPilotNotFound
	}
	if !pilot.InGroup() {
		return "", model.ErrNotInGroup
	}
	if err := d.detach(ctx, pilot.ID, pilot.GroupID); err != nil {
		return "", err
	}
	return pilot.GroupID, nil
}

// GetGroupSnapshot returns the stored group
func (d *Directory) GetGroupSnapshot(ctx context.Context, id model.GroupID) (*model.Group, error) {
	if id == "" {
		return nil, model.ErrGroupNotFound
	}
	g, err := storage.GetJSON[model.Group](ctx, d.store, storage.TableGroups, string(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, model.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}
	g.Normalize()
	return g, nil
}

// UpdateGroup atomically applies fn to an existing group and refreshes its
// expiry. An error from fn aborts the update and is returned unchanged.
func (d *Directory) UpdateGroup(ctx context.Context, id model.GroupID, fn func(g *model.Group) error) (*model.Group, error) {
	return storage.UpdateJSON(ctx, d.store, storage.TableGroups, string(id), d.cfg.TTL,
		func(current *model.Group) (*model.Group, error) {
			if current == nil {
				return nil, model.ErrGroupNotFound
			}
			current.Normalize()
			if err := fn(current); err != nil {
				return nil, err
			}
			current.UpdatedAt = d.clock.Now()
			return current, nil
		})
}

// detach removes the pilot from the group's member set, then clears the
// pilot's group field if it still points at that group
func (d *Directory) detach(ctx context.Context, pilotID model.PilotID, from model.GroupID) error {
	_, err := d.UpdateGroup(ctx, from, func(g *model.Group) error {
		g.RemoveMember(pilotID)
		return nil
	})
	if err != nil && !errors.Is(err, model.ErrGroupNotFound) {
		return fmt.Errorf("detach %s from %s: %w", pilotID, from, err)
	}

	_, err = d.identity.UpdatePilot(ctx, pilotID, func(current *model.Pilot) (*model.Pilot, error) {
		if current == nil {
			return nil, model.ErrPilotNotFound
		}
		if current.GroupID == from {
			current.GroupID = ""
			current.UpdatedAt = d.clock.Now()
		}
		return current, nil
	})
	if err != nil {
		return fmt.Errorf("clear group on %s: %w", pilotID, err)
	}

	d.logger.Info("pilot left group",
		slog.String("pilot_id", string(pilotID)),
		slog.String("group_id", string(from)),
	)
	return nil
}
