package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketReserved TicketStatus = "reserved"
	TicketSold     TicketStatus = "sold"
	TicketReleased TicketStatus = "released"
)

// Ticket is one purchased unit. Price is snapshotted from the class
// at reservation time and never re-read afterwards.
type Ticket struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	EventID string          `json:"event_id"`
	ClassID string          `json:"class_id"`
	Serial  string          `json:"serial"`
	Price   decimal.Decimal `json:"price"`
	Status  TicketStatus    `json:"status"`
	Created time.Time       `json:"created"`
}

// StatusForOrder returns the ticket status implied by an order status.
// Every ticket in an order shares it.
func StatusForOrder(s OrderStatus) TicketStatus {
	switch s {
	case OrderCompleted:
		return TicketSold
	case OrderCancelled, OrderExpired:
		return TicketReleased
	default:
		return TicketReserved
	}
}
