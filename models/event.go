package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Venue             string    `json:"venue"`
	StartTime         time.Time `json:"start_time"`
	MaxTicketsPerUser int       `json:"max_tickets_per_user"` // 0 = unlimited
	Status            string    `json:"status"`               // draft, published, ended

	Classes []TicketClass `json:"classes,omitempty"`
}

// TicketClass is one inventory tier of an event. The counters must
// satisfy capacity = available + reserved + sold at every observable
// instant, and none of them may go negative.
type TicketClass struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Name      string          `json:"name"`
	Capacity  int             `json:"capacity"`
	Available int             `json:"available"`
	Reserved  int             `json:"reserved"`
	Sold      int             `json:"sold"`
	Price     decimal.Decimal `json:"price"`
}

// Class returns the event's class with the given id, or nil.
func (e *Event) Class(classID string) *TicketClass {
	for i := range e.Classes {
		if e.Classes[i].ID == classID {
			return &e.Classes[i]
		}
	}
	return nil
}
