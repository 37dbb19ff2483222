package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/groupflight/flightgroup/internal/api/apierr"
	"github.com/groupflight/flightgroup/internal/api/request"
	"github.com/groupflight/flightgroup/internal/api/response"
	"github.com/groupflight/flightgroup/internal/gateway"
	dispatch "github.com/groupflight/flightgroup/internal/handler"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
)

// EventHandler accepts invocations forwarded by an external websocket front
type EventHandler struct {
	dispatcher gateway.Dispatcher
	logger     *slog.Logger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(dispatcher gateway.Dispatcher, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "event-handler")),
	}
}

// Handle handles POST /api/v1/events. Once the event names a connection the
// response is always 200 {}; failures are only logged.
func (h *EventHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req request.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Invalid event body"))
		return
	}
	if req.RequestContext.ConnectionID == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Missing connection id"))
		return
	}

	inv := dispatch.Invocation{
		ConnectionID: model.ConnectionID(req.RequestContext.ConnectionID),
		Action:       req.RequestContext.RouteKey,
	}
	if inv.Action != protocol.RouteConnect && inv.Action != protocol.RouteDisconnect {
		env, err := protocol.ParseEnvelope([]byte(req.Body))
		if err != nil {
			h.logger.Warn("unparseable event body",
				slog.String("connection_id", string(inv.ConnectionID)),
				slog.String("error", err.Error()),
			)
			response.Ack(w)
			return
		}
		inv.Action = env.Action
		inv.Body = env.Body
	}

	if err := h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), inv); err != nil && !errors.Is(err, protocol.ErrUnrecognizedAction) {
		h.logger.Error("event dispatch failed",
			slog.String("connection_id", string(inv.ConnectionID)),
			slog.String("error", err.Error()),
		)
	}
	response.Ack(w)
}
