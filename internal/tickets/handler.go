package tickets

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticketing/internal/api"
	"ticketing/internal/event"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/tickets", h.create)
	r.Get("/tickets/{id}", h.get)
	r.Put("/tickets/{id}", h.update)
}

type ticketRequest struct {
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

func (req ticketRequest) validate() error {
	if req.Title == "" {
		return fmt.Errorf("title is required: %w", event.ErrValidation)
	}
	if req.Price < 0 {
		return fmt.Errorf("price must be non-negative: %w", event.ErrValidation)
	}
	return nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, fmt.Errorf("invalid body: %w", event.ErrValidation))
		return
	}
	if err := req.validate(); err != nil {
		api.Error(w, err)
		return
	}

	t, err := h.service.Create(r.Context(), CreateParams{Title: req.Title, Price: req.Price})
	if err != nil {
		h.log.Error("create ticket", "error", err)
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusOK, t)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, fmt.Errorf("invalid body: %w", event.ErrValidation))
		return
	}
	if err := req.validate(); err != nil {
		api.Error(w, err)
		return
	}

	t, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateParams{Title: req.Title, Price: req.Price})
	if err != nil {
		h.log.Error("update ticket", "id", chi.URLParam(r, "id"), "error", err)
		api.Error(w, err)
		return
	}

	api.JSON(w, http.StatusOK, t)
}
