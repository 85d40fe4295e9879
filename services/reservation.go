package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ticket-reservation/internal/status"
	"ticket-reservation/models"
	"ticket-reservation/monitoring"
	"ticket-reservation/store"
	"ticket-reservation/utils"
)

// ReservationService validates a purchase attempt and creates the hold
// backing it: order, ticket rows and ledger movement commit in one
// transaction or not at all.
type ReservationService struct {
	store   store.Store
	holdTTL time.Duration
	retry   utils.RetryPolicy
	logger  *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

func NewReservationService(st store.Store, holdTTL time.Duration, retry utils.RetryPolicy, logger *slog.Logger) *ReservationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservationService{
		store:   st,
		holdTTL: holdTTL,
		retry:   retry,
		logger:  logger,
		now:     time.Now,
	}
}

// Reserve creates a pending order holding the requested quantities.
// It fails with status.ErrEventNotFound, ErrClassNotFound,
// ErrInsufficientInventory or ErrLimitExceeded without mutating
// anything.
func (s *ReservationService) Reserve(ctx context.Context, userID, eventID string, lines []models.ReservationLine) (*models.Order, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		monitoring.TrackReservation("invalid")
		return nil, err
	}

	var order *models.Order
	err = utils.Retry(ctx, s.retry, status.IsTransient, func() error {
		order = nil
		return s.store.Atomic(ctx, func(tx store.Store) error {
			o, err := s.reserve(ctx, tx, userID, eventID, merged)
			if err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		monitoring.TrackReservation(reservationOutcome(err))
		return nil, err
	}

	monitoring.TrackReservation("reserved")
	s.logger.Info("hold created",
		"order", order.ID,
		"event", eventID,
		"user", userID,
		"tickets", len(order.Tickets),
		"expires_at", order.ExpiresAt,
	)
	return order, nil
}

func (s *ReservationService) reserve(ctx context.Context, tx store.Store, userID, eventID string, lines []models.ReservationLine) (*models.Order, error) {
	event, err := tx.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	requested := 0
	for _, line := range lines {
		class := event.Class(line.ClassID)
		if class == nil {
			return nil, fmt.Errorf("%w: %q", status.ErrClassNotFound, line.ClassID)
		}
		if class.Available < line.Quantity {
			return nil, fmt.Errorf("%w: class %q has %d available, requested %d",
				status.ErrInsufficientInventory, class.Name, class.Available, line.Quantity)
		}
		requested += line.Quantity
	}

	if event.MaxTicketsPerUser > 0 {
		used, err := tx.CountCompletedTickets(ctx, userID, eventID)
		if err != nil {
			return nil, err
		}
		if err := CheckPurchaseLimit(event.MaxTicketsPerUser, used, requested); err != nil {
			return nil, err
		}
	}

	now := s.now()
	order := &models.Order{
		UserID:    userID,
		EventID:   eventID,
		Status:    models.OrderPending,
		Total:     decimal.Zero,
		ExpiresAt: now.Add(s.holdTTL),
	}

	for _, line := range lines {
		class := event.Class(line.ClassID)

		class.Available -= line.Quantity
		class.Reserved += line.Quantity
		if err := tx.SaveClassCounts(ctx, class); err != nil {
			return nil, err
		}

		lineTotal := class.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		order.Total = order.Total.Add(lineTotal)

		for i := 0; i < line.Quantity; i++ {
			serial, err := utils.TicketSerial()
			if err != nil {
				return nil, fmt.Errorf("generate ticket serial: %w", err)
			}
			order.Tickets = append(order.Tickets, models.Ticket{
				EventID: eventID,
				ClassID: class.ID,
				Serial:  serial,
				Price:   class.Price,
				Status:  models.TicketReserved,
			})
		}
	}

	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// mergeLines validates quantities and folds duplicate classes into a
// single line.
func mergeLines(lines []models.ReservationLine) ([]models.ReservationLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no ticket classes requested", status.ErrInvalidRequest)
	}

	index := make(map[string]int, len(lines))
	merged := make([]models.ReservationLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for class %q must be positive, got %d",
				status.ErrInvalidRequest, line.ClassID, line.Quantity)
		}
		if i, ok := index[line.ClassID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ClassID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func reservationOutcome(err error) string {
	switch {
	case status.IsTransient(err):
		return "transient"
	case errors.Is(err, status.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, status.ErrEventNotFound), errors.Is(err, status.ErrClassNotFound):
		return "not_found"
	case errors.Is(err, status.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, status.ErrLimitExceeded):
		return "limit_exceeded"
	default:
		return "error"
	}
}
