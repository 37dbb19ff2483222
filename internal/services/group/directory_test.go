package group

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/groupflight/flightgroup/internal/dependencies/mocks"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/services/identity"
	"github.com/groupflight/flightgroup/internal/storage"
	"github.com/groupflight/flightgroup/internal/storage/memory"
	"github.com/groupflight/flightgroup/internal/testutil"
)

type DirectorySuite struct {
	suite.Suite
	clock     *mocks.MockClock
	random    *mocks.MockRandom
	store     *memory.Storage
	identity  *identity.Cache
	directory *Directory
	ctx       context.Context
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.store = memory.NewWithClock(s.clock)
	logger := testutil.NopLogger()
	s.identity = identity.New(s.store, s.clock, identity.DefaultConfig(), logger)
	s.directory = New(s.store, s.identity, s.clock, s.random, DefaultConfig(), logger)
	s.ctx = context.Background()
}

func (s *DirectorySuite) createPilot(id model.PilotID) {
	s.Require().NoError(s.identity.PushPilot(s.ctx, &model.Pilot{ID: id, Name: string(id)}))
}

func (s *DirectorySuite) storedPilot(id model.PilotID) *model.Pilot {
	p, err := storage.GetJSON[model.Pilot](s.ctx, s.store, storage.TablePilots, string(id))
	s.Require().NoError(err)
	return p
}

func (s *DirectorySuite) TestEnsureGroupMintsWhenOmitted() {
	s.random.QueueString("ABC123")

	id, err := s.directory.EnsureGroup(s.ctx, "")
	s.Require().NoError(err)
	s.Equal(model.GroupID("ABC123"), id)

	exists, err := s.directory.GroupExists(s.ctx, id)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *DirectorySuite) TestEnsureGroupSkipsTakenIDs() {
	s.random.QueueString("TAKEN1", "TAKEN1", "FRESH1")

	first, err := s.directory.EnsureGroup(s.ctx, "")
	s.Require().NoError(err)
	second, err := s.directory.EnsureGroup(s.ctx, "")
	s.Require().NoError(err)

	s.Equal(model.GroupID("TAKEN1"), first)
	s.Equal(model.GroupID("FRESH1"), second)
}

func (s *DirectorySuite) TestEnsureGroupCreatesRequested() {
	exists, _ := s.directory.GroupExists(s.ctx, "MINE")
	s.False(exists)

	id, err := s.directory.EnsureGroup(s.ctx, "MINE")
	s.Require().NoError(err)
	s.Equal(model.GroupID("MINE"), id)

	g, err := s.directory.GetGroupSnapshot(s.ctx, "MINE")
	s.Require().NoError(err)
	s.Empty(g.Members)
	s.NotNil(g.Waypoints)
	s.NotNil(g.Selections)
}

func (s *DirectorySuite) TestEnsureGroupKeepsExistingContents() {
	_, _ = s.directory.EnsureGroup(s.ctx, "G1")
	_, err := s.directory.UpdateGroup(s.ctx, "G1", func(g *model.Group) error {
		g.Waypoints["w1"] = model.Waypoint{ID: "w1", Name: "Start"}
		return nil
	})
	s.Require().NoError(err)

	_, err = s.directory.EnsureGroup(s.ctx, "G1")
	s.Require().NoError(err)

	g, _ := s.directory.GetGroupSnapshot(s.ctx, "G1")
	s.Contains(g.Waypoints, model.WaypointID("w1"))
}

func (s *DirectorySuite) TestAddPilotToGroup() {
	s.createPilot("p1")

	id, err := s.directory.AddPilotToGroup(s.ctx, "p1", "G1")
	s.Require().NoError(err)
	s.Equal(model.GroupID("G1"), id)

	g, _ := s.directory.GetGroupSnapshot(s.ctx, "G1")
	s.Equal([]model.PilotID{"p1"}, g.Members)
	s.Equal(model.GroupID("G1"), s.storedPilot("p1").GroupID)
}

func (s *DirectorySuite) TestAddPilotToGroupMintsWhenTargetEmpty() {
	s.createPilot("p1")
	s.random.QueueString("NEW001")

	id, err := s.directory.AddPilotToGroup(s.ctx, "p1", "")
	s.Require().NoError(err)
	s.Equal(model.GroupID("NEW001"), id)
}

func (s *DirectorySuite) TestAddPilotToGroupMovesBetweenGroups() {
	s.createPilot("p1")
	s.createPilot("p2")
	_, _ = s.directory.AddPilotToGroup(s.ctx, "p1", "OLD")
	_, _ = s.directory.AddPilotToGroup(s.ctx, "p2", "OLD")
	_, err := s.directory.UpdateGroup(s.ctx, "OLD", func(g *model.Group) error {
		g.Selections["p1"] = "w1"
		return nil
	})
	s.Require().NoError(err)

	_, err = s.directory.AddPilotToGroup(s.ctx, "p1", "NEW")
	s.Require().NoError(err)

	old, _ := s.directory.GetGroupSnapshot(s.ctx, "OLD")
	s.Equal([]model.PilotID{"p2"}, old.Members)
	s.NotContains(old.Selections, model.PilotID("p1"))

	fresh, _ := s.directory.GetGroupSnapshot(s.ctx, "NEW")
	s.Equal([]model.PilotID{"p1"}, fresh.Members)
	s.Equal(model.GroupID("NEW"), s.storedPilot("p1").GroupID)
}

func (s *DirectorySuite) TestAddPilotToSameGroupIsIdempotent() {
	s.createPilot("p1")
	_, _ = s.directory.AddPilotToGroup(s.ctx, "p1", "G1")
	_, err := s.directory.AddPilotToGroup(s.ctx, "p1", "G1")
	s.Require().NoError(err)

	g, _ := s.directory.GetGroupSnapshot(s.ctx, "G1")
	s.Equal([]model.PilotID{"p1"}, g.Members)
}

func (s *DirectorySuite) TestAddPilotUsesStoreNotStaleCache() {
	s.createPilot("p1")
	_, _ = s.directory.AddPilotToGroup(s.ctx, "p1", "OLD")
	_, _ = s.identity.ResolvePilot(s.ctx, "p1")

	// Another invocation moved the pilot; this cache has not seen it
	p := s.storedPilot("p1")
	p.GroupID = "ELSEWHERE"
	s.Require().NoError(storage.PutJSON(s.ctx, s.store, storage.TablePilots, "p1", p, 0))
	_, _ = s.directory.EnsureGroup(s.ctx, "ELSEWHERE")
	_, _ = s.directory.UpdateGroup(s.ctx, "ELSEWHERE", func(g *model.Group) error {
		g.AddMember("p1")
		return nil
	})

	_, err := s.directory.AddPilotToGroup(s.ctx, "p1", "NEW")
	s.Require().NoError(err)

	elsewhere, _ := s.directory.GetGroupSnapshot(s.ctx, "ELSEWHERE")
	s.Empty(elsewhere.Members)
}

func (s *DirectorySuite) TestAddUnknownPilot() {
	_, err := s.directory.AddPilotToGroup(s.ctx, "ghost", "G1")
	s.ErrorIs(err, model.ErrPilotNotFound)
}

func (s *DirectorySuite) TestRemovePilotFromGroup() {
	s.createPilot("p1")
	_, _ = s.directory.AddPilotToGroup(s.ctx, "p1", "G1")

	left, err := s.directory.RemovePilotFromGroup(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(model.GroupID("G1"), left)

	g, _ := s.directory.GetGroupSnapshot(s.ctx, "G1")
	s.Empty(g.Members)
	s.False(s.storedPilot("p1").InGroup())
}

func (s *DirectorySuite) TestRemovePilotNotInGroup() {
	s.createPilot("p1")

	_, err := s.directory.RemovePilotFromGroup(s.ctx, "p1")
	s.ErrorIs(err, model.ErrNotInGroup)
}

func (s *DirectorySuite) TestRemovePilotWhoseGroupExpired() {
	s.createPilot("p1")
	_, _ = s.directory.AddPilotToGroup(s.ctx, "p1", "G1")
	s.clock.Advance(73 * time.Hour)

	_, err := s.directory.RemovePilotFromGroup(s.ctx, "p1")
	s.Require().NoError(err)
	s.False(s.storedPilot("p1").InGroup())
}

func (s *DirectorySuite) TestGetGroupSnapshotMissing() {
	_, err := s.directory.GetGroupSnapshot(s.ctx, "NOPE")
	s.ErrorIs(err, model.ErrGroupNotFound)

	_, err = s.directory.GetGroupSnapshot(s.ctx, "")
	s.ErrorIs(err, model.ErrGroupNotFound)
}

func (s *DirectorySuite) TestUpdateGroupAbortLeavesGroup() {
	_, _ = s.directory.EnsureGroup(s.ctx, "G1")
	abort := errors.New("abort")

	_, err := s.directory.UpdateGroup(s.ctx, "G1", func(g *model.Group) error {
		g.Waypoints["w1"] = model.Waypoint{ID: "w1"}
		return abort
	})
	s.ErrorIs(err, abort)

	g, _ := s.directory.GetGroupSnapshot(s.ctx, "G1")
	s.Empty(g.Waypoints)
}

func (s *DirectorySuite) TestUpdateGroupMissing() {
	_, err := s.directory.UpdateGroup(s.ctx, "NOPE", func(g *model.Group) error { return nil })
	s.ErrorIs(err, model.ErrGroupNotFound)
}

func (s *DirectorySuite) TestGroupsExpire() {
	_, _ = s.directory.EnsureGroup(s.ctx, "G1")
	s.clock.Advance(73 * time.Hour)

	exists, err := s.directory.GroupExists(s.ctx, "G1")
	s.Require().NoError(err)
	s.False(exists)
}
