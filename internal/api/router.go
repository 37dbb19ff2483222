package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/groupflight/flightgroup/internal/api/handler"
	"github.com/groupflight/flightgroup/internal/api/middleware"
	"github.com/groupflight/flightgroup/internal/api/response"
	"github.com/groupflight/flightgroup/internal/gateway"
)

// Socket is the websocket endpoint
type Socket interface {
	http.Handler
	ConnectionCount() int
}

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger     *slog.Logger
	Dispatcher gateway.Dispatcher
	Socket     Socket
	Groups     handler.GroupReader
	Pilots     handler.PilotReader

	// APIToken guards the event and operator routes; empty disables it
	APIToken string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	eventHandler := handler.NewEventHandler(cfg.Dispatcher, cfg.Logger)
	groupHandler := handler.NewGroupHandler(cfg.Groups, cfg.Pilots)

	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)
	tokenMiddleware := middleware.Token(cfg.APIToken)

	// Websocket upgrade; the gateway logs connection lifecycle itself
	r.Handle("/ws", cfg.Socket).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	api.HandleFunc("/health", healthHandler(cfg.Socket)).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(tokenMiddleware)
	protected.HandleFunc("/events", eventHandler.Handle).Methods(http.MethodPost)
	protected.HandleFunc("/groups/{id}", groupHandler.Get).Methods(http.MethodGet)

	return r
}

func healthHandler(socket Socket) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status:      "ok",
			Connections: socket.ConnectionCount(),
		})
	}
}
