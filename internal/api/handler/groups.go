package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/groupflight/flightgroup/internal/api/apierr"
	"github.com/groupflight/flightgroup/internal/api/response"
	"github.com/groupflight/flightgroup/internal/model"
)

// GroupReader is the read side of the group directory
type GroupReader interface {
	GetGroupSnapshot(ctx context.Context, id model.GroupID) (*model.Group, error)
}

// PilotReader resolves pilot records
type PilotReader interface {
	ResolvePilot(ctx context.Context, id model.PilotID) (*model.Pilot, bool)
}

// GroupHandler serves operator views of groups
type GroupHandler struct {
	groups GroupReader
	pilots PilotReader
}

// NewGroupHandler creates a new GroupHandler
func NewGroupHandler(groups GroupReader, pilots PilotReader) *GroupHandler {
	return &GroupHandler{groups: groups, pilots: pilots}
}

// Get handles GET /api/v1/groups/{id}
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := model.GroupID(mux.Vars(r)["id"])

	g, err := h.groups.GetGroupSnapshot(r.Context(), id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	members := make([]*model.Pilot, 0, len(g.Members))
	for _, pilotID := range g.Members {
		if p, ok := h.pilots.ResolvePilot(r.Context(), pilotID); ok {
			members = append(members, p)
		}
	}

	response.JSON(w, http.StatusOK, response.GroupFromModel(g, members))
}
