package store

import (
	"context"
	"time"

	"ticket-reservation/models"
)

// Store is the persistence contract the reservation and settlement
// engines run against. Every ledger-affecting sequence of calls must
// happen inside Atomic so that counters, orders and tickets move
// together or not at all.
type Store interface {
	// Atomic runs fn against a transactional view of the store. If fn
	// returns an error nothing fn did is visible afterwards.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	// GetEvent loads an event together with all its ticket classes.
	// Returns status.ErrEventNotFound if absent.
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)

	// SaveClassCounts persists the available/reserved/sold counters of
	// a ticket class.
	SaveClassCounts(ctx context.Context, class *models.TicketClass) error

	// CreateOrder inserts the order and its ticket rows, filling in
	// the generated ids.
	CreateOrder(ctx context.Context, order *models.Order) error

	// GetOrder loads an order together with its tickets. Returns
	// status.ErrOrderNotFound if absent.
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)

	// SetOrderStatus moves the order to status and every one of its
	// tickets to the matching ticket status.
	SetOrderStatus(ctx context.Context, order *models.Order, status models.OrderStatus) error

	// FindDuePending returns the ids of pending orders whose hold
	// expired at or before now.
	FindDuePending(ctx context.Context, now time.Time) ([]string, error)

	// CountCompletedTickets counts the user's tickets on completed
	// orders for the event.
	CountCompletedTickets(ctx context.Context, userID, eventID string) (int, error)
}
