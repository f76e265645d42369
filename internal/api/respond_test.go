package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketing/internal/domain"
	"ticketing/internal/event"
)

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrNotOwner, http.StatusForbidden},
		{domain.ErrTicketReserved, http.StatusBadRequest},
		{domain.ErrTicketAlreadyReserved, http.StatusBadRequest},
		{domain.ErrOrderTerminal, http.StatusBadRequest},
		{domain.ErrOrderCancelled, http.StatusBadRequest},
		{domain.ErrAmountMismatch, http.StatusBadRequest},
		{event.ErrValidation, http.StatusBadRequest},
		{domain.ErrVersionConflict, http.StatusConflict},
		{fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, fmt.Errorf("wrapping: %w", tt.err))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}
		})
	}
}
