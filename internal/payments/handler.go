package payments

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketing/internal/api"
	"ticketing/internal/event"
)

const userIDHeader = "X-User-Id"

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/payments", h.create)
}

type createPaymentRequest struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, fmt.Errorf("invalid body: %w", event.ErrValidation))
		return
	}
	if req.OrderID == "" {
		api.Error(w, fmt.Errorf("order_id is required: %w", event.ErrValidation))
		return
	}

	p, err := h.service.Create(r.Context(), CreateParams{
		OrderID: req.OrderID,
		UserID:  r.Header.Get(userIDHeader),
		Amount:  req.Amount,
	})
	if err != nil {
		h.log.Error("create payment", "order_id", req.OrderID, "error", err)
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, p)
}
