package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-reservation/internal/payment"
	"ticket-reservation/internal/status"
	"ticket-reservation/services"
	"ticket-reservation/store"
)

type SettlementHandler struct {
	settlement *services.SettlementService
	gateway    *payment.Gateway
	store      store.Store
}

func NewSettlementHandler(settlement *services.SettlementService, gateway *payment.Gateway, st store.Store) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		gateway:    gateway,
		store:      st,
	}
}

// Cancel releases the caller's own pending hold.
func (h *SettlementHandler) Cancel(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	order, err := h.store.GetOrder(e.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			return apis.NewNotFoundError("Order not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load order", err)
	}
	if order.UserID != e.Auth.Id {
		return apis.NewForbiddenError("Not your order", nil)
	}

	cancelled, err := h.settlement.Cancel(e.Request.Context(), orderID)
	if err != nil {
		return settlementError(err)
	}
	return e.JSON(http.StatusOK, cancelled)
}

// GatewayCallback is the bank's HTTP fallback for payment outcomes,
// authenticated by a bearer token and the notification signature.
func (h *SettlementHandler) GatewayCallback(e *core.RequestEvent) error {
	token := strings.TrimPrefix(e.Request.Header.Get("Authorization"), "Bearer ")
	if !h.gateway.VerifyToken(token) {
		return apis.NewUnauthorizedError("Invalid gateway token", nil)
	}

	var n payment.Notification
	if err := e.BindBody(&n); err != nil {
		return apis.NewBadRequestError("Invalid notification", err)
	}

	if err := h.gateway.Process(e.Request.Context(), &n); err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			return apis.NewBadRequestError("Signature mismatch", err)
		}
		if errors.Is(err, status.ErrOrderNotFound) {
			return apis.NewNotFoundError("Order not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to process notification", err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

// SimulatePayment settles an order directly. Registered only in
// development.
func (h *SettlementHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		OrderID string `json:"order_id"`
		Outcome string `json:"outcome"` // success, failed
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	var err error
	switch req.Outcome {
	case "success":
		_, err = h.settlement.Approve(e.Request.Context(), req.OrderID)
	case "failed":
		_, err = h.settlement.Reject(e.Request.Context(), req.OrderID)
	default:
		return apis.NewBadRequestError("Outcome must be success or failed", nil)
	}
	if err != nil {
		return settlementError(err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "settled"})
}

func settlementError(err error) error {
	switch {
	case errors.Is(err, status.ErrOrderNotFound):
		return apis.NewNotFoundError("Order not found", err)
	case errors.Is(err, status.ErrConflict):
		return apis.NewApiError(http.StatusConflict, err.Error(), err)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Settlement failed", err)
	}
}
