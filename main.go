package main

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

	"studyseat-system/config"
	"studyseat-system/handlers"
	"studyseat-system/internal/gateway"
	"studyseat-system/internal/gateway/feepay"
	_ "studyseat-system/migrations"
	"studyseat-system/monitoring"
	"studyseat-system/security"
	"studyseat-system/services"
	"studyseat-system/utils"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize the realtime notifier
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	} else {
		log.Println("PubNub keys not configured, realtime notifications disabled")
	}

	// Create context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the payment gateway
	gw, err := newGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("payment gateway init: %v", err)
	}
	defer gw.Close(context.Background())

	// Initialize stores and services
	store := services.NewPBStore(app)
	sessionService := services.NewSessionService(redisClient, notifier, cfg.SessionTimeout)
	seatService := services.NewSeatService(store, store, notifier)
	bookingService := services.NewBookingService(store, store, seatService, gw, notifier, cfg.GatewayTimeout)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService)
	seatHandler := handlers.NewSeatHandler(seatService)
	bookingHandler := handlers.NewBookingHandler(bookingService)
	adminHandler := handlers.NewAdminHandler(seatService, bookingService)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	notifCh := make(chan *gateway.Notification, 16)
	gw.SetNotificationChannel(notifCh)
	go bookingService.ConsumeNotifications(ctx, notifCh)
	go seatService.RunSweeper(ctx, cfg.SweepInterval)

	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient, store)
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Public seat map
		e.Router.GET("/api/seats", seatHandler.ListSeats).BindFunc(rateLimiter.AntiBotMiddleware())
		e.Router.GET("/api/seats/{number}", seatHandler.GetSeat)

		// Session endpoints
		auth := e.Router.Group("/api")
		auth.Bind(apis.RequireAuth())
		auth.POST("/sessions", sessionHandler.CreateSession)
		auth.POST("/sessions/heartbeat", sessionHandler.Heartbeat)
		auth.GET("/sessions/validate", sessionHandler.ValidateSession)
		auth.DELETE("/sessions", sessionHandler.Logout)

		auth.GET("/my/seat", seatHandler.MySeat)
		auth.GET("/my/history", seatHandler.MyHistory)
		auth.GET("/my/payments", bookingHandler.MyPayments)
		auth.GET("/orders/{orderId}", bookingHandler.GetOrder)
		auth.GET("/realtime/channels", sessionHandler.RealtimeChannels)

		// State-changing endpoints additionally require the active session
		// and are rate limited
		booking := e.Router.Group("/api")
		booking.Bind(apis.RequireAuth())
		booking.BindFunc(sessionHandler.RequireSession())
		booking.BindFunc(rateLimiter.BookingRateLimit())
		booking.POST("/orders", bookingHandler.CreateOrder)
		booking.POST("/orders/verify", bookingHandler.VerifyPayment)
		booking.POST("/orders/{orderId}/cancel", bookingHandler.CancelOrder)
		booking.POST("/seats/{number}/extend", seatHandler.ExtendSeat)
		booking.POST("/seats/{number}/release", seatHandler.ReleaseSeat)

		// Admin endpoints
		admin := e.Router.Group("/api/admin")
		admin.BindFunc(security.RequireAdminKey(cfg.AdminKeyHash))
		admin.GET("/dashboard", adminHandler.Dashboard)
		admin.POST("/seats/{number}/status", adminHandler.SetSeatStatus)
		admin.POST("/seats/{number}/release", adminHandler.ReleaseSeat)
		admin.POST("/seats/{number}/extend", adminHandler.ExtendSeat)
		admin.POST("/orders/{orderId}/refund", adminHandler.Refund)
		admin.GET("/unreconciled", adminHandler.Unreconciled)

		// Test endpoint completing a sandbox payment end to end
		if cfg.Environment == "development" {
			if sandbox, ok := gw.(*gateway.Sandbox); ok {
				e.Router.POST("/api/test/complete-payment", func(e *core.RequestEvent) error {
					var req struct {
						OrderID string `json:"order_id"`
					}
					if err := e.BindBody(&req); err != nil {
						return apis.NewBadRequestError("invalid request body", err)
					}
					paymentID, signature, err := sandbox.CompletePayment(req.OrderID)
					if err != nil {
						return apis.NewBadRequestError(err.Error(), nil)
					}
					return e.JSON(200, map[string]string{
						"order_id":   req.OrderID,
						"payment_id": paymentID,
						"signature":  signature,
					})
				})
			}
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

// newGateway builds the configured payment gateway backend.
func newGateway(ctx context.Context, cfg *config.Config) (gateway.PaymentGateway, error) {
	factory := gateway.NewFactory()

	switch gateway.Provider(cfg.GatewayProvider) {
	case gateway.ProviderFeePay:
		return factory.CreateGateway(ctx, gateway.ProviderFeePay, &feepay.Config{
			BaseURL:   cfg.GatewayBaseURL,
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
			HMACKey:   cfg.GatewayHMACKey,
			PNSubKey:  cfg.GatewayPNSubKey,
			PNUUID:    cfg.GatewayPNUUID,
			PNChannel: cfg.GatewayPNChannel,
		})
	default:
		log.Println("Using sandbox payment gateway")
		return factory.CreateGateway(ctx, gateway.ProviderSandbox, cfg.GatewayKeySecret)
	}
}

// serveMetrics exposes Prometheus metrics on a separate port.
func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
