// Package auth runs the pilot lifecycle: registration and
// reauthentication, profile updates and connection teardown.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/groupflight/flightgroup/internal/dependencies/clock"
	"github.com/groupflight/flightgroup/internal/dependencies/random"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/flightplan"
	"github.com/groupflight/flightgroup/internal/services/group"
	"github.com/groupflight/flightgroup/internal/services/identity"
)

// pilotIDLength is how many trailing characters of a UUID form a pilot id
const pilotIDLength = 12

// TierLookup resolves a hashed identity to a tier label
type TierLookup interface {
	CheckHash(hash string) (string, bool)
}

// Config holds configuration for the auth service
type Config struct {
	// SessionDuration bounds how long a connection stays authenticated
	SessionDuration time.Duration

	// MinNameLength is the shortest accepted pilot name, in characters
	MinNameLength int

	// BcryptCost is the work factor for stored secret hashes
	BcryptCost int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 12 * time.Hour,
		MinNameLength:   2,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// Credentials is what a connection presents to authenticate
type Credentials struct {
	ConnectionID   model.ConnectionID
	PilotID        model.PilotID // empty to register a new pilot
	Secret         string        // empty to have one issued
	Name           string
	AvatarHash     string
	TierHash       string
	RequestedGroup model.GroupID // empty for a fresh group
	APIVersion     float64
}

// Result is a successful authentication
type Result struct {
	Pilot              *model.Pilot
	Secret             string // plaintext, only ever returned to the pilot itself
	ProfileFingerprint string

	// Superseded is the pilot's previous live connection, if this
	// authentication replaced one
	Superseded model.ConnectionID

	// PreviousGroup is the group the pilot record named before this
	// authentication, empty for new pilots
	PreviousGroup model.GroupID
}

// ProfileUpdate is a request to change a pilot's public profile
type ProfileUpdate struct {
	PilotID    model.PilotID
	Secret     string
	Name       string
	AvatarHash string
}

// Service handles pilot registration, authentication and sessions
type Service struct {
	identity *identity.Cache
	groups   *group.Directory
	tiers    TierLookup
	clock    clock.Clock
	random   random.Random
	cfg      Config
	logger   *slog.Logger
}

// New creates a new auth Service
func New(
	identity *identity.Cache,
	groups *group.Directory,
	tiers TierLookup,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Service {
	defaults := DefaultConfig()
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = defaults.SessionDuration
	}
	if cfg.MinNameLength <= 0 {
		cfg.MinNameLength = defaults.MinNameLength
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	return &Service{
		identity: identity,
		groups:   groups,
		tiers:    tiers,
		clock:    clock,
		random:   random,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "auth-service")),
	}
}

// Authenticate registers a new pilot or reauthenticates an existing one on
// the given connection, places it in a group and opens a session
func (s *Service) Authenticate(ctx context.Context, in Credentials) (*Result, error) {
	var existing *model.Pilot
	if in.PilotID != "" {
		existing, _ = s.identity.RefreshPilot(ctx, in.PilotID)
	}
	if existing != nil && existing.SecretHash != "" && !secretMatches(existing.SecretHash, in.Secret) {
		s.logger.Warn("authentication rejected: pilot id registered with another secret",
			slog.String("pilot_id", string(in.PilotID)),
			slog.String("connection_id", string(in.ConnectionID)),
		)
		return nil, model.ErrPilotIDTaken
	}

	name, err := s.validateName(in.Name)
	if err != nil {
		return nil, err
	}

	pilotID := in.PilotID
	if pilotID == "" {
		id := s.random.UUID()
		pilotID = model.PilotID(id[len(id)-pilotIDLength:])
	}
	secret := in.Secret
	if secret == "" {
		secret = s.random.UUID()
	}
	secretHash := ""
	if existing != nil {
		secretHash = existing.SecretHash
	}
	if secretHash == "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(secret), s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash secret: %w", err)
		}
		secretHash = string(hashed)
	}

	requested := in.RequestedGroup
	if requested != "" {
		exists, err := s.groups.GroupExists(ctx, requested)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.logger.Info("requested group not found, minting a new one",
				slog.String("pilot_id", string(pilotID)),
				slog.String("group_id", string(requested)),
			)
			requested = ""
		}
	}

	now := s.clock.Now()
	var superseded model.ConnectionID
	var previousGroup model.GroupID
	pilot, err := s.identity.UpdatePilot(ctx, pilotID, func(current *model.Pilot) (*model.Pilot, error) {
		if current == nil {
			current = &model.Pilot{ID: pilotID, CreatedAt: now}
		} else if current.SecretHash != "" && current.SecretHash != secretHash {
			// Registered concurrently under a different secret
			return nil, model.ErrPilotIDTaken
		}
		superseded = ""
		previousGroup = current.GroupID
		if current.ConnectionID != in.ConnectionID {
			superseded = current.ConnectionID
		}
		current.SecretHash = secretHash
		current.Name = name
		current.AvatarHash = in.AvatarHash
		if in.TierHash != "" && s.tiers != nil {
			current.Tier, _ = s.tiers.CheckHash(in.TierHash)
		}
		current.ConnectionID = in.ConnectionID
		current.ProtocolVersion = in.APIVersion
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return nil, fmt.Errorf("save pilot %s: %w", pilotID, err)
	}

	groupID, err := s.groups.AddPilotToGroup(ctx, pilotID, requested)
	if err != nil {
		return nil, err
	}
	pilot.GroupID = groupID

	if superseded != "" {
		if err := s.identity.DeleteSession(ctx, superseded); err != nil {
			s.logger.Warn("failed to drop superseded session",
				slog.String("connection_id", string(superseded)),
				slog.String("error", err.Error()),
			)
		}
	}

	err = s.identity.SetSession(ctx, &model.ConnectionSession{
		ConnectionID: in.ConnectionID,
		PilotID:      pilotID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.SessionDuration),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pilot authenticated",
		slog.String("pilot_id", string(pilotID)),
		slog.String("connection_id", string(in.ConnectionID)),
		slog.String("group_id", string(groupID)),
		slog.Bool("new_pilot", existing == nil),
	)

	return &Result{
		Pilot:              pilot,
		Secret:             secret,
		ProfileFingerprint: flightplan.ProfileFingerprint(pilot),
		Superseded:         superseded,
		PreviousGroup:      previousGroup,
	}, nil
}

// UpdateProfile changes a pilot's public profile after checking its secret
func (s *Service) UpdateProfile(ctx context.Context, in ProfileUpdate) (*model.Pilot, error) {
	current, ok := s.identity.RefreshPilot(ctx, in.PilotID)
	if !ok {
		return nil, model.ErrPilotNotFound
	}
	if !secretMatches(current.SecretHash, in.Secret) {
		return nil, model.ErrSecretMismatch
	}
	name, err := s.validateName(in.Name)
	if err != nil {
		return nil, err
	}
	verified := current.SecretHash

	pilot, err := s.identity.UpdatePilot(ctx, in.PilotID, func(current *model.Pilot) (*model.Pilot, error) {
		if current == nil {
			return nil, model.ErrPilotNotFound
		}
		if current.SecretHash != verified {
			return nil, model.ErrSecretMismatch
		}
		current.Name = name
		current.AvatarHash = in.AvatarHash
		current.UpdatedAt = s.clock.Now()
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", slog.String("pilot_id", string(pilot.ID)))
	return pilot, nil
}

// Disconnect tears down the session for a closed connection. An unknown
// connection is not an error.
func (s *Service) Disconnect(ctx context.Context, conn model.ConnectionID) error {
	sess, ok := s.identity.ResolveSession(ctx, conn)
	if !ok {
		return nil
	}

	_, err := s.identity.UpdatePilot(ctx, sess.PilotID, func(current *model.Pilot) (*model.Pilot, error) {
		if current == nil {
			return nil, model.ErrPilotNotFound
		}
		// A newer connection may already have taken over
		if current.ConnectionID == conn {
			current.ConnectionID = ""
			current.UpdatedAt = s.clock.Now()
		}
		return current, nil
	})
	if err != nil && !errors.Is(err, model.ErrPilotNotFound) {
		return fmt.Errorf("clear connection for %s: %w", sess.PilotID, err)
	}

	if err := s.identity.DeleteSession(ctx, conn); err != nil {
		return err
	}
	s.identity.InvalidatePilot(sess.PilotID)

	s.logger.Info("pilot disconnected",
		slog.String("pilot_id", string(sess.PilotID)),
		slog.String("connection_id", string(conn)),
	)
	return nil
}

// PilotsOnline reports for each id whether the pilot has a live connection.
// Unknown ids are reported offline.
func (s *Service) PilotsOnline(ctx context.Context, ids []model.PilotID) (map[model.PilotID]bool, error) {
	if len(ids) == 0 {
		return nil, model.ErrMissingData
	}
	online := make(map[model.PilotID]bool, len(ids))
	for _, id := range ids {
		p, ok := s.identity.ResolvePilot(ctx, id)
		online[id] = ok && p.IsOnline()
	}
	return online, nil
}

func (s *Service) validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < s.cfg.MinNameLength {
		return "", model.ErrNameTooShort
	}
	return name, nil
}

func secretMatches(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
