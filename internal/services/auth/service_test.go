package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/groupflight/flightgroup/internal/dependencies/mocks"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/flightplan"
	"github.com/groupflight/flightgroup/internal/services/group"
	"github.com/groupflight/flightgroup/internal/services/identity"
	"github.com/groupflight/flightgroup/internal/services/tier"
	"github.com/groupflight/flightgroup/internal/storage"
	"github.com/groupflight/flightgroup/internal/storage/memory"
	"github.com/groupflight/flightgroup/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	clock     *mocks.MockClock
	random    *mocks.MockRandom
	store     *memory.Storage
	identity  *identity.Cache
	directory *group.Directory
	tiers     *tier.Table
	service   *Service
	ctx       context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.store = memory.NewWithClock(s.clock)
	logger := testutil.NopLogger()
	s.identity = identity.New(s.store, s.clock, identity.DefaultConfig(), logger)
	s.directory = group.New(s.store, s.identity, s.clock, s.random, group.DefaultConfig(), logger)
	s.tiers = tier.New(logger)

	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	s.service = New(s.identity, s.directory, s.tiers, s.clock, s.random, cfg, logger)
	s.ctx = context.Background()
}

func (s *ServiceSuite) storedPilot(id model.PilotID) *model.Pilot {
	p, err := storage.GetJSON[model.Pilot](s.ctx, s.store, storage.TablePilots, string(id))
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) register(conn model.ConnectionID, name string) *Result {
	res, err := s.service.Authenticate(s.ctx, Credentials{ConnectionID: conn, Name: name, APIVersion: 5})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) TestRegisterMintsIdentityAndGroup() {
	s.random.QueueUUID("11111111-2222-4333-8444-abcdefabcdef", "secret-uuid")
	s.random.QueueString("GRP001")

	res, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID: "c1",
		Name:         "Alice",
		AvatarHash:   "av1",
		APIVersion:   5,
	})
	s.Require().NoError(err)

	s.Equal(model.PilotID("abcdefabcdef"), res.Pilot.ID)
	s.Equal("secret-uuid", res.Secret)
	s.Equal(model.GroupID("GRP001"), res.Pilot.GroupID)
	s.Equal(flightplan.ProfileFingerprint(res.Pilot), res.ProfileFingerprint)
	s.Empty(res.Superseded)

	stored := s.storedPilot("abcdefabcdef")
	s.Equal("Alice", stored.Name)
	s.Equal(model.ConnectionID("c1"), stored.ConnectionID)
	s.Equal(model.GroupID("GRP001"), stored.GroupID)
	s.Equal(5.0, stored.ProtocolVersion)
	s.NotEqual("secret-uuid", stored.SecretHash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte("secret-uuid")))

	sess, ok := s.identity.ResolveSession(s.ctx, "c1")
	s.Require().True(ok)
	s.Equal(res.Pilot.ID, sess.PilotID)
	s.Equal(s.clock.Now().Add(12*time.Hour), sess.ExpiresAt)

	g, err := s.directory.GetGroupSnapshot(s.ctx, "GRP001")
	s.Require().NoError(err)
	s.Equal([]model.PilotID{res.Pilot.ID}, g.Members)
}

func (s *ServiceSuite) TestRegisterJoinsRequestedExistingGroup() {
	alice := s.register("c1", "Alice")

	res, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID:   "c2",
		Name:           "Bob",
		RequestedGroup: alice.Pilot.GroupID,
	})
	s.Require().NoError(err)
	s.Equal(alice.Pilot.GroupID, res.Pilot.GroupID)

	g, _ := s.directory.GetGroupSnapshot(s.ctx, alice.Pilot.GroupID)
	s.Len(g.Members, 2)
}

func (s *ServiceSuite) TestMissingRequestedGroupFallsBackToFreshOne() {
	s.random.QueueString("FRESH1")

	res, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID:   "c1",
		Name:           "Alice",
		RequestedGroup: "GONE",
	})
	s.Require().NoError(err)
	s.Equal(model.GroupID("FRESH1"), res.Pilot.GroupID)

	exists, _ := s.directory.GroupExists(s.ctx, "GONE")
	s.False(exists)
}

func (s *ServiceSuite) TestReauthenticateWithSecret() {
	first := s.register("c1", "Alice")

	res, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID:   "c2",
		PilotID:        first.Pilot.ID,
		Secret:         first.Secret,
		Name:           "Alice",
		RequestedGroup: first.Pilot.GroupID,
	})
	s.Require().NoError(err)

	s.Equal(first.Pilot.ID, res.Pilot.ID)
	s.Equal(first.Secret, res.Secret)
	s.Equal(model.ConnectionID("c1"), res.Superseded)
	s.Equal(model.ConnectionID("c2"), s.storedPilot(first.Pilot.ID).ConnectionID)

	_, ok := s.identity.ResolveSession(s.ctx, "c1")
	s.False(ok, "old connection no longer maps to the pilot")
	_, ok = s.identity.ResolveSession(s.ctx, "c2")
	s.True(ok)
}

func (s *ServiceSuite) TestReauthenticateWithWrongSecretIsRejectedWithoutChanges() {
	first := s.register("c1", "Alice")
	before := s.storedPilot(first.Pilot.ID)

	_, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID:   "c2",
		PilotID:        first.Pilot.ID,
		Secret:         "guess",
		Name:           "Mallory",
		RequestedGroup: "ELSEWHERE",
	})
	s.ErrorIs(err, model.ErrPilotIDTaken)

	after := s.storedPilot(first.Pilot.ID)
	s.Equal(before.SecretHash, after.SecretHash)
	s.Equal(before.GroupID, after.GroupID)
	s.Equal("Alice", after.Name)
	_, ok := s.identity.ResolveSession(s.ctx, "c2")
	s.False(ok)
}

func (s *ServiceSuite) TestReauthenticateWithoutSecretIsRejected() {
	first := s.register("c1", "Alice")

	_, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID: "c2",
		PilotID:      first.Pilot.ID,
		Name:         "Alice",
	})
	s.ErrorIs(err, model.ErrPilotIDTaken)
}

func (s *ServiceSuite) TestClientChosenIDIsAccepted() {
	res, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID: "c1",
		PilotID:      "mine",
		Secret:       "s3cret",
		Name:         "Alice",
	})
	s.Require().NoError(err)
	s.Equal(model.PilotID("mine"), res.Pilot.ID)
	s.Equal("s3cret", res.Secret)
}

func (s *ServiceSuite) TestShortNameIsRejected() {
	for _, name := range []string{"", " ", "A", "  B  "} {
		_, err := s.service.Authenticate(s.ctx, Credentials{ConnectionID: "c1", Name: name})
		s.ErrorIs(err, model.ErrNameTooShort, "name %q", name)
	}
	_, ok := s.identity.ResolveSession(s.ctx, "c1")
	s.False(ok)
}

func (s *ServiceSuite) TestTierIsResolvedFromHash() {
	hash := tier.HashIdentity("alice@example.com", "Alice")
	s.tiers.Replace(map[string]string{hash: "Supporter"})

	res, err := s.service.Authenticate(s.ctx, Credentials{ConnectionID: "c1", Name: "Alice", TierHash: hash})
	s.Require().NoError(err)
	s.Equal("Supporter", res.Pilot.Tier)

	plain, err := s.service.Authenticate(s.ctx, Credentials{ConnectionID: "c2", Name: "Bob", TierHash: "nope"})
	s.Require().NoError(err)
	s.Empty(plain.Pilot.Tier)
}

func (s *ServiceSuite) TestUpdateProfile() {
	first := s.register("c1", "Alice")

	p, err := s.service.UpdateProfile(s.ctx, ProfileUpdate{
		PilotID:    first.Pilot.ID,
		Secret:     first.Secret,
		Name:       "Alicia",
		AvatarHash: "av2",
	})
	s.Require().NoError(err)
	s.Equal("Alicia", p.Name)
	s.Equal(first.Pilot.GroupID, p.GroupID)

	stored := s.storedPilot(first.Pilot.ID)
	s.Equal("Alicia", stored.Name)
	s.Equal("av2", stored.AvatarHash)
}

func (s *ServiceSuite) TestUpdateProfileErrors() {
	first := s.register("c1", "Alice")

	_, err := s.service.UpdateProfile(s.ctx, ProfileUpdate{PilotID: "ghost", Secret: "x", Name: "Ghost"})
	s.ErrorIs(err, model.ErrPilotNotFound)

	_, err = s.service.UpdateProfile(s.ctx, ProfileUpdate{PilotID: first.Pilot.ID, Secret: "wrong", Name: "Alicia"})
	s.ErrorIs(err, model.ErrSecretMismatch)

	_, err = s.service.UpdateProfile(s.ctx, ProfileUpdate{PilotID: first.Pilot.ID, Secret: first.Secret, Name: "A"})
	s.ErrorIs(err, model.ErrNameTooShort)

	s.Equal("Alice", s.storedPilot(first.Pilot.ID).Name)
}

func (s *ServiceSuite) TestDisconnect() {
	first := s.register("c1", "Alice")

	s.Require().NoError(s.service.Disconnect(s.ctx, "c1"))

	s.False(s.storedPilot(first.Pilot.ID).IsOnline())
	_, ok := s.identity.ResolveSession(s.ctx, "c1")
	s.False(ok)
	s.True(s.storedPilot(first.Pilot.ID).InGroup(), "disconnect keeps group membership")
}

func (s *ServiceSuite) TestDisconnectUnknownConnectionIsNoOp() {
	s.NoError(s.service.Disconnect(s.ctx, "never-seen"))
}

func (s *ServiceSuite) TestDisconnectOfSupersededConnectionKeepsNewOne() {
	first := s.register("c1", "Alice")
	// Simulate the old connection's close arriving before its session was dropped
	s.Require().NoError(s.identity.SetSession(s.ctx, &model.ConnectionSession{
		ConnectionID: "c1", PilotID: first.Pilot.ID, ExpiresAt: s.clock.Now().Add(time.Hour),
	}))
	_, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID: "c2", PilotID: first.Pilot.ID, Secret: first.Secret, Name: "Alice",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.identity.SetSession(s.ctx, &model.ConnectionSession{
		ConnectionID: "c1", PilotID: first.Pilot.ID, ExpiresAt: s.clock.Now().Add(time.Hour),
	}))

	s.Require().NoError(s.service.Disconnect(s.ctx, "c1"))

	s.Equal(model.ConnectionID("c2"), s.storedPilot(first.Pilot.ID).ConnectionID)
}

func (s *ServiceSuite) TestPilotsOnline() {
	alice := s.register("c1", "Alice")
	bob := s.register("c2", "Bob")
	s.Require().NoError(s.service.Disconnect(s.ctx, "c2"))

	online, err := s.service.PilotsOnline(s.ctx, []model.PilotID{alice.Pilot.ID, bob.Pilot.ID, "ghost"})
	s.Require().NoError(err)
	s.Equal(map[model.PilotID]bool{
		alice.Pilot.ID: true,
		bob.Pilot.ID:   false,
		"ghost":        false,
	}, online)

	_, err = s.service.PilotsOnline(s.ctx, nil)
	s.ErrorIs(err, model.ErrMissingData)
}

func (s *ServiceSuite) TestReauthenticateIntoAnotherGroupReportsPreviousGroup() {
	first := s.register("c1", "Alice")
	_, err := s.directory.EnsureGroup(s.ctx, "OTHER")
	s.Require().NoError(err)

	res, err := s.service.Authenticate(s.ctx, Credentials{
		ConnectionID:   "c2",
		PilotID:        first.Pilot.ID,
		Secret:         first.Secret,
		Name:           "Alice",
		RequestedGroup: "OTHER",
	})
	s.Require().NoError(err)

	s.Equal(first.Pilot.GroupID, res.PreviousGroup)
	s.Equal(model.GroupID("OTHER"), res.Pilot.GroupID)
	old, _ := s.directory.GetGroupSnapshot(s.ctx, first.Pilot.GroupID)
	s.Empty(old.Members)
}
