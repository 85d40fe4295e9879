package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-reservation/internal/status"
	"ticket-reservation/models"
	"ticket-reservation/services"
	"ticket-reservation/store"
)

type ReservationHandler struct {
	reservations *services.ReservationService
	store        store.Store
}

func NewReservationHandler(reservations *services.ReservationService, st store.Store) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		store:        st,
	}
}

// Reserve creates a hold for the authenticated user.
func (h *ReservationHandler) Reserve(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID string                   `json:"event_id"`
		Lines   []models.ReservationLine `json:"lines"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	order, err := h.reservations.Reserve(e.Request.Context(), e.Auth.Id, req.EventID, req.Lines)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrEventNotFound), errors.Is(err, status.ErrClassNotFound):
			return apis.NewNotFoundError(err.Error(), err)
		case errors.Is(err, status.ErrInvalidRequest),
			errors.Is(err, status.ErrInsufficientInventory),
			errors.Is(err, status.ErrLimitExceeded):
			return apis.NewBadRequestError(err.Error(), err)
		default:
			return apis.NewApiError(http.StatusInternalServerError, "Failed to reserve tickets", err)
		}
	}

	return e.JSON(http.StatusOK, order)
}

// GetOrder returns the caller's order with its tickets.
func (h *ReservationHandler) GetOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	order, err := h.store.GetOrder(e.Request.Context(), e.Request.PathValue("orderId"))
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			return apis.NewNotFoundError("Order not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load order", err)
	}
	if order.UserID != e.Auth.Id {
		return apis.NewForbiddenError("Not your order", nil)
	}

	return e.JSON(http.StatusOK, order)
}
