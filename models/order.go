package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	EventID   string          `json:"event_id"`
	Status    OrderStatus     `json:"status"`
	Total     decimal.Decimal `json:"total"`
	ExpiresAt time.Time       `json:"expires_at"`
	Created   time.Time       `json:"created"`
	Updated   time.Time       `json:"updated"`

	Tickets []Ticket `json:"tickets,omitempty"`
}

// TicketsByClass groups the order's own ticket rows by class id.
// Settlement recomputes ledger deltas from this, never from
// caller-supplied counts.
func (o *Order) TicketsByClass() map[string]int {
	counts := make(map[string]int, len(o.Tickets))
	for _, t := range o.Tickets {
		counts[t.ClassID]++
	}
	return counts
}

// ReservationLine is one requested (class, quantity) pair of a
// reservation attempt.
type ReservationLine struct {
	ClassID  string `json:"class_id"`
	Quantity int    `json:"quantity"`
}
