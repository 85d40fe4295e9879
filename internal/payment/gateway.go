// Package payment turns external bank notifications into settlement
// calls. The bank pushes payment outcomes over a PubNub channel (and,
// as a fallback, an HTTP callback); each notification is verified,
// deduplicated and routed to approve or reject.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"ticket-reservation/config"
	"ticket-reservation/internal/status"
	"ticket-reservation/models"
)

// Settler is the slice of the settlement engine the gateway drives.
type Settler interface {
	Approve(ctx context.Context, orderID string) (*models.Order, error)
	Reject(ctx context.Context, orderID string) (*models.Order, error)
}

// Notification is one payment outcome pushed by the bank.
type Notification struct {
	OrderID   string          `json:"order_id"`
	RefID     string          `json:"ref_id"`
	Status    string          `json:"status"` // success, failed
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}

var (
	ErrBadSignature = errors.New("gateway: notification signature mismatch")
	ErrDuplicate    = errors.New("gateway: notification already processed")
)

type Gateway struct {
	cfg     config.GatewayConfig
	settler Settler
	redis   *redis.Client
	logger  *slog.Logger

	pn  *pubnub.PubNub
	lis *pubnub.Listener
}

func NewGateway(cfg config.GatewayConfig, settler Settler, redisClient *redis.Client, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:     cfg,
		settler: settler,
		redis:   redisClient,
		logger:  logger,
	}
}

// Start subscribes to the bank channel and processes notifications
// until ctx is cancelled. It is a no-op when no subscribe key is
// configured (HTTP callback only).
func (g *Gateway) Start(ctx context.Context) {
	if g.cfg.SubscribeKey == "" {
		g.logger.Info("gateway subscription disabled, callback endpoint only")
		return
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(g.cfg.UUID))
	pnCfg.SubscribeKey = g.cfg.SubscribeKey
	pnCfg.SecretKey = g.cfg.SecretKey
	pnCfg.CipherKey = g.cfg.CipherKey

	g.pn = pubnub.NewPubNub(pnCfg)
	g.lis = pubnub.NewListener()
	g.pn.AddListener(g.lis)
	g.pn.Subscribe().Channels([]string{g.cfg.Channel}).Execute()

	go g.processSubscription(ctx)
}

func (g *Gateway) processSubscription(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			g.pn.UnsubscribeAll()
			return

		case st := <-g.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				g.logger.Info("gateway connected", "channel", g.cfg.Channel)
			case pubnub.PNReconnectedCategory:
				g.logger.Info("gateway reconnected", "channel", g.cfg.Channel)
			case pubnub.PNDisconnectedCategory:
				g.logger.Warn("gateway disconnected", "channel", g.cfg.Channel)
			case pubnub.PNAccessDeniedCategory:
				g.logger.Error("gateway access denied", "channel", g.cfg.Channel)
			}

		case message := <-g.lis.Message:
			data, err := json.Marshal(message.Message)
			if err != nil {
				g.logger.Error("gateway message not serializable", "error", err)
				continue
			}
			var n Notification
			if err := json.Unmarshal(data, &n); err != nil {
				g.logger.Error("gateway message not a notification", "error", err)
				continue
			}
			if err := g.Process(ctx, &n); err != nil {
				g.logger.Error("gateway notification dropped", "order", n.OrderID, "ref", n.RefID, "error", err)
			}
		}
	}
}

// Process verifies, dedupes and settles one notification. Duplicate
// deliveries and lost settle races are benign and reported as nil.
func (g *Gateway) Process(ctx context.Context, n *Notification) error {
	if !g.verifySignature(n) {
		return ErrBadSignature
	}

	var settle func(context.Context, string) (*models.Order, error)
	switch n.Status {
	case "success":
		settle = g.settler.Approve
	case "failed":
		settle = g.settler.Reject
	default:
		return fmt.Errorf("gateway: unknown notification status %q", n.Status)
	}

	if err := g.markProcessed(ctx, n.RefID); err != nil {
		if errors.Is(err, ErrDuplicate) {
			g.logger.Info("duplicate gateway notification", "ref", n.RefID, "order", n.OrderID)
			return nil
		}
		return err
	}

	_, err := settle(ctx, n.OrderID)

	// The order already left pending through another path; nothing to
	// apply twice.
	if errors.Is(err, status.ErrConflict) {
		g.logger.Info("order already settled", "order", n.OrderID, "status", n.Status)
		return nil
	}
	if err != nil {
		// The order is still unsettled; free the ref so the bank's
		// redelivery is not discarded as a duplicate.
		g.releaseClaim(ctx, n.RefID)
		return err
	}
	return nil
}

func claimKey(refID string) string {
	return fmt.Sprintf("gateway:notice:%s", refID)
}

// markProcessed claims the notification ref id for 24h. A second
// delivery of the same ref loses the SetNX and reports ErrDuplicate.
func (g *Gateway) markProcessed(ctx context.Context, refID string) error {
	if g.redis == nil {
		return nil
	}
	ok, err := g.redis.SetNX(ctx, claimKey(refID), 1, 24*time.Hour).Result()
	if err != nil {
		return fmt.Errorf("gateway dedupe: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (g *Gateway) releaseClaim(ctx context.Context, refID string) {
	if g.redis == nil {
		return
	}
	if err := g.redis.Del(ctx, claimKey(refID)).Err(); err != nil {
		g.logger.Error("gateway dedupe release failed", "ref", refID, "error", err)
	}
}

func (g *Gateway) verifySignature(n *Notification) bool {
	if g.cfg.HMACKey == "" {
		return true
	}
	expected := Sign(g.cfg.HMACKey, n.OrderID, n.RefID, n.Status)
	return hmac.Equal([]byte(expected), []byte(n.Signature))
}

// Sign computes the hex HMAC-SHA256 the bank attaches to a
// notification.
func Sign(key, orderID, refID, outcome string) string {
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%s:%s:%s", orderID, refID, outcome)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyToken checks an HTTP callback bearer token against the
// configured bcrypt hash.
func (g *Gateway) VerifyToken(token string) bool {
	if g.cfg.TokenHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(g.cfg.TokenHash), []byte(token)) == nil
}
