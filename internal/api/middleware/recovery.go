package middleware

import (
	"log/slog"
	"net/http"

	"github.com/groupflight/flightgroup/internal/api/apierr"
	"github.com/groupflight/flightgroup/internal/middleware"
)

// Recovery creates panic recovery middleware for the API; a panicking
// handler answers with the JSON INTERNAL_ERROR body
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger.With(slog.String("component", "api")), apiPanicHandler)
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}
