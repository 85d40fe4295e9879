package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticket-reservation/internal/status"
	"ticket-reservation/models"
	"ticket-reservation/store"
)

// memStore is an in-memory store.Store used by the engine tests. It
// rolls back on a failed Atomic the same way the real transaction
// does, and supports one-shot failure injection per operation.
type memStore struct {
	mu     sync.Mutex
	events map[string]*models.Event
	orders map[string]*models.Order
	seq    int

	// failOnce maps an operation name to an error returned on its
	// next call(s); each failNext arms one failure.
	failOnce map[string][]error

	// dueOverride, when set, is returned by FindDuePending as-is.
	dueOverride []string
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string]*models.Event),
		orders:   make(map[string]*models.Order),
		failOnce: make(map[string][]error),
	}
}

func (m *memStore) failNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnce[op] = append(m.failOnce[op], err)
}

func (m *memStore) takeFailure(op string) error {
	if queue := m.failOnce[op]; len(queue) > 0 {
		m.failOnce[op] = queue[1:]
		return queue[0]
	}
	return nil
}

func (m *memStore) seedEvent(event *models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
}

func (m *memStore) class(eventID, classID string) *models.TicketClass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[eventID].Class(classID)
}

func (m *memStore) order(orderID string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID]
}

func (m *memStore) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure("Atomic"); err != nil {
		return err
	}

	snapEvents, snapOrders := m.clone()
	if err := fn(&memTx{s: m}); err != nil {
		m.events, m.orders = snapEvents, snapOrders
		return err
	}
	return nil
}

func (m *memStore) clone() (map[string]*models.Event, map[string]*models.Order) {
	events := make(map[string]*models.Event, len(m.events))
	for id, e := range m.events {
		copied := *e
		copied.Classes = append([]models.TicketClass(nil), e.Classes...)
		events[id] = &copied
	}
	orders := make(map[string]*models.Order, len(m.orders))
	for id, o := range m.orders {
		copied := *o
		copied.Tickets = append([]models.Ticket(nil), o.Tickets...)
		orders[id] = &copied
	}
	return events, orders
}

func (m *memStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).GetEvent(ctx, eventID)
}

func (m *memStore) SaveClassCounts(ctx context.Context, class *models.TicketClass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).SaveClassCounts(ctx, class)
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).CreateOrder(ctx, order)
}

func (m *memStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).GetOrder(ctx, orderID)
}

func (m *memStore) SetOrderStatus(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).SetOrderStatus(ctx, order, to)
}

func (m *memStore) FindDuePending(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).FindDuePending(ctx, now)
}

func (m *memStore) CountCompletedTickets(ctx context.Context, userID, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{s: m}).CountCompletedTickets(ctx, userID, eventID)
}

// memTx is the unlocked transactional view handed to Atomic callbacks.
type memTx struct {
	s *memStore
}

func (t *memTx) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *memTx) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if err := t.s.takeFailure("GetEvent"); err != nil {
		return nil, err
	}
	event, ok := t.s.events[eventID]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	copied := *event
	copied.Classes = append([]models.TicketClass(nil), event.Classes...)
	return &copied, nil
}

func (t *memTx) SaveClassCounts(ctx context.Context, class *models.TicketClass) error {
	if err := t.s.takeFailure("SaveClassCounts"); err != nil {
		return err
	}
	event, ok := t.s.events[class.EventID]
	if !ok {
		return status.ErrEventNotFound
	}
	stored := event.Class(class.ID)
	if stored == nil {
		return status.ErrClassNotFound
	}
	stored.Available = class.Available
	stored.Reserved = class.Reserved
	stored.Sold = class.Sold
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := t.s.takeFailure("CreateOrder"); err != nil {
		return err
	}
	t.s.seq++
	order.ID = fmt.Sprintf("ord%d", t.s.seq)
	order.Created = time.Now()
	order.Updated = order.Created
	for i := range order.Tickets {
		t.s.seq++
		order.Tickets[i].ID = fmt.Sprintf("tkt%d", t.s.seq)
		order.Tickets[i].OrderID = order.ID
	}

	copied := *order
	copied.Tickets = append([]models.Ticket(nil), order.Tickets...)
	t.s.orders[order.ID] = &copied
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if err := t.s.takeFailure("GetOrder"); err != nil {
		return nil, err
	}
	if err := t.s.takeFailure("GetOrder:" + orderID); err != nil {
		return nil, err
	}
	order, ok := t.s.orders[orderID]
	if !ok {
		return nil, status.ErrOrderNotFound
	}
	copied := *order
	copied.Tickets = append([]models.Ticket(nil), order.Tickets...)
	return &copied, nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	if err := t.s.takeFailure("SetOrderStatus"); err != nil {
		return err
	}
	stored, ok := t.s.orders[order.ID]
	if !ok {
		return status.ErrOrderNotFound
	}
	stored.Status = to
	stored.Updated = time.Now()
	ticketStatus := models.StatusForOrder(to)
	for i := range stored.Tickets {
		stored.Tickets[i].Status = ticketStatus
	}

	order.Status = to
	for i := range order.Tickets {
		order.Tickets[i].Status = ticketStatus
	}
	return nil
}

func (t *memTx) FindDuePending(ctx context.Context, now time.Time) ([]string, error) {
	if err := t.s.takeFailure("FindDuePending"); err != nil {
		return nil, err
	}
	if t.s.dueOverride != nil {
		return t.s.dueOverride, nil
	}
	var ids []string
	for id, order := range t.s.orders {
		if order.Status == models.OrderPending && !order.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *memTx) CountCompletedTickets(ctx context.Context, userID, eventID string) (int, error) {
	if err := t.s.takeFailure("CountCompletedTickets"); err != nil {
		return 0, err
	}
	count := 0
	for _, order := range t.s.orders {
		if order.UserID == userID && order.EventID == eventID && order.Status == models.OrderCompleted {
			count += len(order.Tickets)
		}
	}
	return count, nil
}

// regularEvent seeds a published event with a single "regular" class:
// 10 available at price 50.
func regularEvent(maxPerUser int) *models.Event {
	return &models.Event{
		ID:                "evt1",
		Name:              "Test Concert",
		Venue:             "Test Arena",
		MaxTicketsPerUser: maxPerUser,
		Status:            "published",
		Classes: []models.TicketClass{
			{
				ID:        "regular",
				EventID:   "evt1",
				Name:      "REGULAR",
				Capacity:  10,
				Available: 10,
				Price:     decimal.NewFromInt(50),
			},
		},
	}
}
