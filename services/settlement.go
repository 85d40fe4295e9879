package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ticket-reservation/internal/status"
	"ticket-reservation/models"
	"ticket-reservation/monitoring"
	"ticket-reservation/store"
	"ticket-reservation/utils"
)

// SettlementService drives the order state machine. Every transition
// is keyed by order id only: ledger deltas are recomputed from the
// order's own ticket rows so a caller can never drift the counters.
type SettlementService struct {
	store    store.Store
	notifier Notifier
	retry    utils.RetryPolicy
	logger   *slog.Logger
}

func NewSettlementService(st store.Store, notifier Notifier, retry utils.RetryPolicy, logger *slog.Logger) *SettlementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementService{
		store:    st,
		notifier: notifier,
		retry:    retry,
		logger:   logger,
	}
}

// Approve moves a pending order to completed: reserved -> sold per
// class, tickets to sold. The notification hook fires after commit and
// its failure never rolls the settlement back.
func (s *SettlementService) Approve(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.transition(ctx, "approve", orderID, models.OrderCompleted,
		func(class *models.TicketClass, n int) {
			class.Reserved -= n
			class.Sold += n
		})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order, "payment_success")
	return order, nil
}

// Reject reports a failed payment. The order stays pending and its
// tickets reserved; the hold keeps its original expiry, so an
// unsettled rejection still ends in the sweeper.
func (s *SettlementService) Reject(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := utils.Retry(ctx, s.retry, status.IsTransient, func() error {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderPending {
			return fmt.Errorf("%w: order %s is %s", status.ErrConflict, orderID, o.Status)
		}
		order = o
		return nil
	})
	if err != nil {
		monitoring.TrackSettlement("reject", settlementOutcome(err))
		return nil, err
	}

	monitoring.TrackSettlement("reject", "ok")
	s.logger.Info("payment rejected, hold kept", "order", orderID, "expires_at", order.ExpiresAt)
	s.notify(ctx, order, "payment_failed")
	return order, nil
}

// Cancel releases a pending hold on buyer request: reserved ->
// available, tickets released.
func (s *SettlementService) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, "cancel", orderID, models.OrderCancelled,
		func(class *models.TicketClass, n int) {
			class.Reserved -= n
			class.Available += n
		})
}

// Expire releases a timed-out hold. Ledger-equivalent to Cancel; only
// the terminal order status differs.
func (s *SettlementService) Expire(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, "expire", orderID, models.OrderExpired,
		func(class *models.TicketClass, n int) {
			class.Reserved -= n
			class.Available += n
		})
}

func (s *SettlementService) transition(ctx context.Context, name, orderID string, to models.OrderStatus, apply func(class *models.TicketClass, n int)) (*models.Order, error) {
	var order *models.Order
	err := utils.Retry(ctx, s.retry, status.IsTransient, func() error {
		order = nil
		return s.store.Atomic(ctx, func(tx store.Store) error {
			o, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			// Precondition check doubles as the idempotency guard: a
			// lost race or duplicate delivery sees a non-pending order
			// and never applies the ledger delta twice.
			if o.Status != models.OrderPending {
				return fmt.Errorf("%w: order %s is %s", status.ErrConflict, orderID, o.Status)
			}

			event, err := tx.GetEvent(ctx, o.EventID)
			if err != nil {
				return err
			}

			for classID, n := range o.TicketsByClass() {
				class := event.Class(classID)
				if class == nil {
					return fmt.Errorf("%w: %q referenced by order %s", status.ErrClassNotFound, classID, orderID)
				}
				if class.Reserved < n {
					return fmt.Errorf("ledger drift: class %q has %d reserved, order %s holds %d",
						class.Name, class.Reserved, orderID, n)
				}
				apply(class, n)
				if err := tx.SaveClassCounts(ctx, class); err != nil {
					return err
				}
			}

			if err := tx.SetOrderStatus(ctx, o, to); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		monitoring.TrackSettlement(name, settlementOutcome(err))
		return nil, err
	}

	monitoring.TrackSettlement(name, "ok")
	s.logger.Info("order settled", "order", orderID, "transition", name, "status", order.Status)
	return order, nil
}

// notify invokes the notification hook fire-and-forget.
func (s *SettlementService) notify(ctx context.Context, order *models.Order, outcome string) {
	if s.notifier == nil {
		return
	}
	go func() {
		if err := s.notifier.NotifySettled(context.WithoutCancel(ctx), order, outcome); err != nil {
			s.logger.Warn("settlement notification failed", "order", order.ID, "outcome", outcome, "error", err)
		}
	}()
}

func settlementOutcome(err error) string {
	switch {
	case errors.Is(err, status.ErrConflict):
		return "conflict"
	case errors.Is(err, status.ErrOrderNotFound):
		return "not_found"
	case status.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
