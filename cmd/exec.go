package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"checkin-station/config"
	"checkin-station/handlers"
	"checkin-station/internal/verification"
	_ "checkin-station/migrations"
	"checkin-station/models"
	"checkin-station/monitoring"
	"checkin-station/security"
	"checkin-station/services"
	"checkin-station/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Staff session shared by the verification client and the scan pipeline
	staffSession := models.NewStaffSession()

	authority := verification.New(&verification.Config{
		BaseURL: cfg.AuthorityBaseURL,
		Timeout: cfg.AuthorityTimeout,
	}, staffSession)

	// Initialize PubNub feedback, or run silent when no keys are configured
	var feedback services.Feedback = services.NoopFeedback{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		feedback = services.NewPubNubFeedback(pubnub.NewPubNub(pnConfig), cfg.StationID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	watcher := services.NewConnectivityWatcher(authority, cfg.ProbeInterval)
	queueStore := services.NewRedisQueueStore(redisClient, services.OutboxKey(cfg.OutboxKeyPrefix, cfg.StationID))
	outbox := services.NewOutboxService(queueStore, authority, watcher.Online, cfg.MaxSyncAttempts)
	outbox.SetSyncObserver(monitoring.ObserveSyncPass)
	verifier := services.NewVerifierService(authority, feedback)
	limiter := security.NewRateLimiter(redisClient)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authority, staffSession)
	outboxHandler := handlers.NewOutboxHandler(outbox, watcher, cfg.AdminPINHash)
	eventHandler := handlers.NewEventHandler(authority, redisClient, cfg.EventCacheTTL)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	go watcher.Run(ctx)
	go outbox.Run(ctx, watcher.Triggers())

	if cfg.EnableMetrics {
		monitoring.NewMonitor(outbox)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		audit := services.NewAuditTrail(app.DB())
		checkinHandler := handlers.NewCheckInHandler(
			app, verifier, outbox, watcher, audit,
			staffSession, feedback, cfg.StationLocation, cfg.ScanCooldown,
		)

		// Auth endpoints
		e.Router.POST("/api/v1/auth/login", authHandler.Login)
		e.Router.POST("/api/v1/auth/logout", authHandler.Logout)
		e.Router.GET("/api/v1/auth/me", authHandler.Me)

		// Scan session endpoints
		e.Router.POST("/api/v1/scan-sessions", checkinHandler.OpenSession)
		e.Router.DELETE("/api/v1/scan-sessions/current", checkinHandler.CloseSession)
		e.Router.GET("/api/v1/scan-sessions/current", checkinHandler.SessionStatus)
		e.Router.POST("/api/v1/scan-sessions/current/scan-again", checkinHandler.ScanAgain)

		// Check-in endpoints
		e.Router.POST("/api/v1/checkin/scan", checkinHandler.Scan).
			BindFunc(limiter.CheckInRateLimit(120))
		e.Router.POST("/api/v1/checkin/manual", checkinHandler.Manual).
			BindFunc(limiter.CheckInRateLimit(60))
		e.Router.GET("/api/v1/checkin/history", checkinHandler.RecentScans)

		// Outbox endpoints
		e.Router.GET("/api/v1/outbox/stats", outboxHandler.Stats)
		e.Router.GET("/api/v1/outbox/items", outboxHandler.Items)
		e.Router.POST("/api/v1/outbox/sync", outboxHandler.Sync)
		e.Router.POST("/api/v1/outbox/requeue", outboxHandler.Requeue)

		// Event endpoints
		e.Router.GET("/api/v1/events", eventHandler.List)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{
				"status": "healthy",
				"online": boolWord(watcher.Online()),
			})
		})

		log.Println("Server routes registered")

		// Items queued before the last restart are still in Redis; nudge the
		// sync worker so they drain as soon as the uplink allows.
		watcher.Notify()
		slog.Info("requested startup outbox sync", "station", cfg.StationID)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func boolWord(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
