// Package api holds the HTTP plumbing shared by the service handlers:
// response encoding and the mapping from domain errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ticketing/internal/domain"
	"ticketing/internal/event"
)

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error translates a domain error into an HTTP status. Anything not in the
// domain taxonomy is a 500 and the caller should have logged it.
func Error(w http.ResponseWriter, err error) {
	JSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTicketReserved),
		errors.Is(err, domain.ErrTicketAlreadyReserved),
		errors.Is(err, domain.ErrOrderTerminal),
		errors.Is(err, domain.ErrOrderCancelled),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, event.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
