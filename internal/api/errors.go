package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hearthctl/hearth-core/internal/auth"
	"github.com/hearthctl/hearth-core/internal/supla"
	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeUpstream     = "upstream_unavailable"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps domain errors to HTTP responses. Unrecognised errors
// become a 500 without leaking internals.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, thermostat.ErrThermostatNotFound):
		writeNotFound(w, "thermostat not found")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeForbidden(w, "you do not own this thermostat")
	case errors.Is(err, thermostat.ErrScheduleOverlap):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, thermostat.ErrProfileNotFound),
		errors.Is(err, thermostat.ErrRoomNotFound),
		errors.Is(err, thermostat.ErrInvalidAction),
		errors.Is(err, thermostat.ErrActionUnsupported):
		writeBadRequest(w, err.Error())
	case errors.Is(err, supla.ErrUpstreamUnavailable),
		errors.Is(err, supla.ErrMissingCredentials):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "remote device API unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
