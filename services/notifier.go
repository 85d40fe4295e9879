package services

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go"

	"ticket-reservation/models"
	"ticket-reservation/utils"
)

// Notifier is the post-settlement notification hook. Implementations
// are best-effort: a failed publish is logged by the caller and never
// affects the settlement it followed.
type Notifier interface {
	NotifySettled(ctx context.Context, order *models.Order, outcome string) error
}

// PubNubNotifier publishes settlement outcomes to the buyer's own
// channel, behind a circuit breaker so a dead PubNub does not slow
// every settlement down.
type PubNubNotifier struct {
	pn      *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		pn:      pn,
		breaker: utils.NewCircuitBreaker("settlement-notifier"),
	}
}

func (n *PubNubNotifier) NotifySettled(ctx context.Context, order *models.Order, outcome string) error {
	return n.breaker.Do(func() error {
		channel := fmt.Sprintf("user-%s", order.UserID)
		_, _, err := n.pn.Publish().
			Channel(channel).
			Message(map[string]any{
				"type":     outcome,
				"order_id": order.ID,
				"status":   order.Status,
				"total":    order.Total.InexactFloat64(),
			}).
			Execute()
		if err != nil {
			return fmt.Errorf("publish to %s: %w", channel, err)
		}
		return nil
	})
}
