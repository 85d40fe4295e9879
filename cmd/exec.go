package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticket-reservation/config"
	"ticket-reservation/handlers"
	"ticket-reservation/internal/payment"
	_ "ticket-reservation/migrations"
	"ticket-reservation/services"
	"ticket-reservation/store"
	"ticket-reservation/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub (settlement notifications)
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	retry := utils.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}

	// Initialize stores and services
	st := store.NewPBStore(app)
	notifier := services.NewPubNubNotifier(pn)
	reservations := services.NewReservationService(st, cfg.HoldTTL, retry, app.Logger())
	settlement := services.NewSettlementService(st, notifier, retry, app.Logger())
	sweeper := services.NewExpirationSweeper(st, settlement, cfg.SweepInterval, app.Logger())
	gateway := payment.NewGateway(cfg.Gateway, settlement, redisClient, app.Logger())

	// Initialize handlers
	reservationHandler := handlers.NewReservationHandler(reservations, st)
	settlementHandler := handlers.NewSettlementHandler(settlement, gateway, st)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Background tasks
		sweeper.Start(ctx)
		gateway.Start(ctx)

		// Reservation endpoints
		e.Router.POST("/api/v1/orders/reserve", reservationHandler.Reserve).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/orders/{orderId}", reservationHandler.GetOrder).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/orders/{orderId}/cancel", settlementHandler.Cancel).Bind(apis.RequireAuth())

		// Payment gateway callback
		e.Router.POST("/api/v1/gateway/callback", settlementHandler.GatewayCallback)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", settlementHandler.SimulatePayment)
		}

		// Metrics
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		sweeper.Stop()
		return e.Next()
	})

	// main logs and exits on a returned error; returning keeps the
	// deferred cleanup running.
	return app.Start()
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
