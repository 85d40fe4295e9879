package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-reservation/internal/status"
	"ticket-reservation/models"
)

// recordingNotifier captures hook invocations on a channel so tests
// can wait for the fire-and-forget goroutine.
type recordingNotifier struct {
	calls chan string
	err   error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(chan string, 8)}
}

func (n *recordingNotifier) NotifySettled(ctx context.Context, order *models.Order, outcome string) error {
	n.calls <- outcome
	return n.err
}

func (n *recordingNotifier) await(t *testing.T) string {
	t.Helper()
	select {
	case outcome := <-n.calls:
		return outcome
	case <-time.After(time.Second):
		t.Fatal("notification hook was not invoked")
		return ""
	}
}

func setupSettlementService(ms *memStore, notifier Notifier) *SettlementService {
	return NewSettlementService(ms, notifier, testRetry, nil)
}

func reservePending(t *testing.T, ms *memStore, userID string, quantity int) *models.Order {
	t.Helper()
	order, err := setupReservationService(ms).Reserve(context.Background(), userID, "evt1",
		[]models.ReservationLine{{ClassID: "regular", Quantity: quantity}})
	require.NoError(t, err)
	return order
}

func TestApprove_CompletesOrder(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	notifier := newRecordingNotifier()
	svc := setupSettlementService(ms, notifier)

	order := reservePending(t, ms, "user1", 3)

	approved, err := svc.Approve(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderCompleted, approved.Status)
	for _, ticket := range approved.Tickets {
		assert.Equal(t, models.TicketSold, ticket.Status)
	}
	assertLedger(t, ms.class("evt1", "regular"), 7, 0, 3)

	assert.Equal(t, "payment_success", notifier.await(t))
}

func TestApprove_Idempotent(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)
	ctx := context.Background()

	order := reservePending(t, ms, "user1", 3)

	_, err := svc.Approve(ctx, order.ID)
	require.NoError(t, err)

	// The second approve sees a non-pending order and must not credit
	// sold again.
	_, err = svc.Approve(ctx, order.ID)
	require.ErrorIs(t, err, status.ErrConflict)

	assertLedger(t, ms.class("evt1", "regular"), 7, 0, 3)
}

func TestApprove_MovesOnlyOwnTickets(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)

	first := reservePending(t, ms, "user1", 3)
	second := reservePending(t, ms, "user2", 2)

	_, err := svc.Approve(context.Background(), first.ID)
	require.NoError(t, err)

	// Only the approved order's 3 tickets moved; user2's hold stays.
	assertLedger(t, ms.class("evt1", "regular"), 5, 2, 3)
	assert.Equal(t, models.OrderPending, ms.order(second.ID).Status)
}

func TestReject_KeepsHoldLive(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	notifier := newRecordingNotifier()
	svc := setupSettlementService(ms, notifier)

	order := reservePending(t, ms, "user1", 3)
	expiresAt := order.ExpiresAt

	rejected, err := svc.Reject(context.Background(), order.ID)
	require.NoError(t, err)

	// Order and tickets unchanged, ledger unchanged, expiry not
	// extended: the hold keeps running and ends in the sweeper.
	assert.Equal(t, models.OrderPending, rejected.Status)
	assert.Equal(t, expiresAt, rejected.ExpiresAt)
	stored := ms.order(order.ID)
	assert.Equal(t, models.OrderPending, stored.Status)
	for _, ticket := range stored.Tickets {
		assert.Equal(t, models.TicketReserved, ticket.Status)
	}
	assertLedger(t, ms.class("evt1", "regular"), 7, 3, 0)

	assert.Equal(t, "payment_failed", notifier.await(t))
}

func TestReject_ConflictOnSettledOrder(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)
	ctx := context.Background()

	order := reservePending(t, ms, "user1", 1)
	_, err := svc.Approve(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, order.ID)
	require.ErrorIs(t, err, status.ErrConflict)
}

func TestCancel_ReleasesHold(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)

	order := reservePending(t, ms, "user1", 3)

	cancelled, err := svc.Cancel(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	for _, ticket := range cancelled.Tickets {
		assert.Equal(t, models.TicketReleased, ticket.Status)
	}
	assertLedger(t, ms.class("evt1", "regular"), 10, 0, 0)
}

func TestCancelAndExpire_AreLedgerEquivalent(t *testing.T) {
	run := func(settle func(svc *SettlementService, orderID string) error) *models.TicketClass {
		ms := newMemStore()
		ms.seedEvent(regularEvent(0))
		svc := setupSettlementService(ms, nil)
		order := reservePending(t, ms, "user1", 3)
		require.NoError(t, settle(svc, order.ID))
		return ms.class("evt1", "regular")
	}

	cancelled := run(func(svc *SettlementService, orderID string) error {
		_, err := svc.Cancel(context.Background(), orderID)
		return err
	})
	expired := run(func(svc *SettlementService, orderID string) error {
		_, err := svc.Expire(context.Background(), orderID)
		return err
	})

	assert.Equal(t, cancelled.Available, expired.Available)
	assert.Equal(t, cancelled.Reserved, expired.Reserved)
	assert.Equal(t, cancelled.Sold, expired.Sold)
}

func TestExpire_ConflictAfterApprove(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)
	ctx := context.Background()

	order := reservePending(t, ms, "user1", 2)
	_, err := svc.Approve(ctx, order.ID)
	require.NoError(t, err)

	// Expire losing the race must not touch the sold counters.
	_, err = svc.Expire(ctx, order.ID)
	require.ErrorIs(t, err, status.ErrConflict)
	assertLedger(t, ms.class("evt1", "regular"), 8, 0, 2)
}

func TestSettlement_OrderNotFound(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "missing")
	require.ErrorIs(t, err, status.ErrOrderNotFound)
	_, err = svc.Cancel(ctx, "missing")
	require.ErrorIs(t, err, status.ErrOrderNotFound)
}

func TestApprove_NotifierFailureDoesNotRollBack(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	notifier := newRecordingNotifier()
	notifier.err = assert.AnError
	svc := setupSettlementService(ms, notifier)

	order := reservePending(t, ms, "user1", 2)

	approved, err := svc.Approve(context.Background(), order.ID)
	require.NoError(t, err)
	notifier.await(t)

	assert.Equal(t, models.OrderCompleted, approved.Status)
	assert.Equal(t, models.OrderCompleted, ms.order(order.ID).Status)
	assertLedger(t, ms.class("evt1", "regular"), 8, 0, 2)
}

func TestApprove_RetriesTransientConflict(t *testing.T) {
	ms := newMemStore()
	ms.seedEvent(regularEvent(0))
	svc := setupSettlementService(ms, nil)

	order := reservePending(t, ms, "user1", 1)

	ms.failNext("Atomic", status.ErrTransient)

	_, err := svc.Approve(context.Background(), order.ID)
	require.NoError(t, err)
	assertLedger(t, ms.class("evt1", "regular"), 9, 0, 1)
}
