package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-reservation/internal/status"
	"ticket-reservation/models"
)

const (
	collectionEvents  = "events"
	collectionClasses = "ticket_classes"
	collectionOrders  = "orders"
	collectionTickets = "tickets"
)

// PBStore implements Store on a PocketBase app. Atomicity comes from
// PocketBase's RunInTransaction; SQLite's single-writer model
// serializes conflicting counter updates.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	err := s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&PBStore{app: txApp})
	})
	return mapStoreErr(err)
}

func (s *PBStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById(collectionEvents, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrEventNotFound
		}
		return nil, mapStoreErr(err)
	}

	event := &models.Event{
		ID:                record.Id,
		Name:              record.GetString("name"),
		Venue:             record.GetString("venue"),
		StartTime:         record.GetDateTime("starts_at").Time(),
		MaxTicketsPerUser: record.GetInt("max_tickets_per_user"),
		Status:            record.GetString("status"),
	}

	classes, err := s.app.FindAllRecords(collectionClasses, dbx.HashExp{"event": eventID})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	for _, c := range classes {
		event.Classes = append(event.Classes, models.TicketClass{
			ID:        c.Id,
			EventID:   eventID,
			Name:      c.GetString("name"),
			Capacity:  c.GetInt("capacity"),
			Available: c.GetInt("available"),
			Reserved:  c.GetInt("reserved"),
			Sold:      c.GetInt("sold"),
			Price:     decimal.NewFromFloat(c.GetFloat("price")),
		})
	}

	return event, nil
}

func (s *PBStore) SaveClassCounts(ctx context.Context, class *models.TicketClass) error {
	record, err := s.app.FindRecordById(collectionClasses, class.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrClassNotFound
		}
		return mapStoreErr(err)
	}

	record.Set("available", class.Available)
	record.Set("reserved", class.Reserved)
	record.Set("sold", class.Sold)

	return mapStoreErr(s.app.Save(record))
}

func (s *PBStore) CreateOrder(ctx context.Context, order *models.Order) error {
	orders, err := s.app.FindCollectionByNameOrId(collectionOrders)
	if err != nil {
		return mapStoreErr(err)
	}
	tickets, err := s.app.FindCollectionByNameOrId(collectionTickets)
	if err != nil {
		return mapStoreErr(err)
	}

	expiresAt, err := types.ParseDateTime(order.ExpiresAt)
	if err != nil {
		return fmt.Errorf("parse expires_at: %w", err)
	}

	record := core.NewRecord(orders)
	record.Set("user", order.UserID)
	record.Set("event", order.EventID)
	record.Set("status", string(order.Status))
	record.Set("total", order.Total.InexactFloat64())
	record.Set("expires_at", expiresAt)

	if err := s.app.Save(record); err != nil {
		return mapStoreErr(err)
	}
	order.ID = record.Id
	order.Created = record.GetDateTime("created").Time()
	order.Updated = record.GetDateTime("updated").Time()

	for i := range order.Tickets {
		t := &order.Tickets[i]
		t.OrderID = order.ID

		row := core.NewRecord(tickets)
		row.Set("order", order.ID)
		row.Set("event", t.EventID)
		row.Set("class", t.ClassID)
		row.Set("serial", t.Serial)
		row.Set("price", t.Price.InexactFloat64())
		row.Set("status", string(t.Status))

		if err := s.app.Save(row); err != nil {
			return mapStoreErr(err)
		}
		t.ID = row.Id
	}

	return nil
}

func (s *PBStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	record, err := s.app.FindRecordById(collectionOrders, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrOrderNotFound
		}
		return nil, mapStoreErr(err)
	}

	order := &models.Order{
		ID:        record.Id,
		UserID:    record.GetString("user"),
		EventID:   record.GetString("event"),
		Status:    models.OrderStatus(record.GetString("status")),
		Total:     decimal.NewFromFloat(record.GetFloat("total")),
		ExpiresAt: record.GetDateTime("expires_at").Time(),
		Created:   record.GetDateTime("created").Time(),
		Updated:   record.GetDateTime("updated").Time(),
	}

	rows, err := s.app.FindAllRecords(collectionTickets, dbx.HashExp{"order": orderID})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	for _, row := range rows {
		order.Tickets = append(order.Tickets, models.Ticket{
			ID:      row.Id,
			OrderID: orderID,
			EventID: row.GetString("event"),
			ClassID: row.GetString("class"),
			Serial:  row.GetString("serial"),
			Price:   decimal.NewFromFloat(row.GetFloat("price")),
			Status:  models.TicketStatus(row.GetString("status")),
		})
	}

	return order, nil
}

func (s *PBStore) SetOrderStatus(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	record, err := s.app.FindRecordById(collectionOrders, order.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrOrderNotFound
		}
		return mapStoreErr(err)
	}

	record.Set("status", string(to))
	if err := s.app.Save(record); err != nil {
		return mapStoreErr(err)
	}

	ticketStatus := models.StatusForOrder(to)
	rows, err := s.app.FindAllRecords(collectionTickets, dbx.HashExp{"order": order.ID})
	if err != nil {
		return mapStoreErr(err)
	}
	for _, row := range rows {
		row.Set("status", string(ticketStatus))
		if err := s.app.Save(row); err != nil {
			return mapStoreErr(err)
		}
	}

	order.Status = to
	for i := range order.Tickets {
		order.Tickets[i].Status = ticketStatus
	}
	order.Updated = record.GetDateTime("updated").Time()

	return nil
}

func (s *PBStore) FindDuePending(ctx context.Context, now time.Time) ([]string, error) {
	due, err := types.ParseDateTime(now)
	if err != nil {
		return nil, fmt.Errorf("parse due time: %w", err)
	}

	records, err := s.app.FindAllRecords(collectionOrders,
		dbx.HashExp{"status": string(models.OrderPending)},
		dbx.NewExp("expires_at <= {:due}", dbx.Params{"due": due.String()}),
	)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.Id)
	}
	return ids, nil
}

func (s *PBStore) CountCompletedTickets(ctx context.Context, userID, eventID string) (int, error) {
	var count int
	err := s.app.DB().
		Select("count(*)").
		From(collectionTickets).
		InnerJoin(collectionOrders, dbx.NewExp("orders.id = tickets.[[order]]")).
		Where(dbx.HashExp{
			"orders.user":   userID,
			"orders.event":  eventID,
			"orders.status": string(models.OrderCompleted),
		}).
		Row(&count)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return count, nil
}

// mapStoreErr folds SQLite contention errors into status.ErrTransient
// so callers can apply their retry policy.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") {
		return fmt.Errorf("%w: %v", status.ErrTransient, err)
	}
	return err
}
