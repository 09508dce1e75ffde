package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/couchcryptid/nasa-explorer/internal/adapter/nasa"
	"github.com/couchcryptid/nasa-explorer/internal/domain"
	"github.com/couchcryptid/nasa-explorer/internal/game"
	"github.com/couchcryptid/nasa-explorer/internal/resilience"
	"github.com/couchcryptid/nasa-explorer/internal/store"
)

// errBadParam marks a malformed query parameter or request body.
var errBadParam = errors.New("bad parameter")

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, domain.ErrInvalidHour),
		errors.Is(err, game.ErrInvalidRequest),
		errors.Is(err, nasa.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, nasa.ErrUpstream), resilience.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	} else {
		s.logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

