package orders

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketing/internal/api"
	"ticketing/internal/event"
)

// userIDHeader carries the caller's identity. Authentication itself is
// handled upstream of these services.
const userIDHeader = "X-User-Id"

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)
	r.Delete("/orders/{id}", h.cancel)
}

type createOrderRequest struct {
	TicketID string `json:"ticket_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, fmt.Errorf("invalid body: %w", event.ErrValidation))
		return
	}
	if req.TicketID == "" {
		api.Error(w, fmt.Errorf("ticket_id is required: %w", event.ErrValidation))
		return
	}

	o, err := h.service.Create(r.Context(), CreateParams{
		UserID:   r.Header.Get(userIDHeader),
		TicketID: req.TicketID,
	})
	if err != nil {
		h.log.Error("create order", "ticket_id", req.TicketID, "error", err)
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, o)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusOK, o)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), r.Header.Get(userIDHeader))
	if err != nil {
		h.log.Error("cancel order", "id", chi.URLParam(r, "id"), "error", err)
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusOK, o)
}
