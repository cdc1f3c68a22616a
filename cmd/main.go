package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/relayport/relay_service/internal/api/handlers"
	"github.com/relayport/relay_service/internal/api/routes"
	"github.com/relayport/relay_service/internal/domain/services/notifications"
	"github.com/relayport/relay_service/internal/domain/services/orchestrator"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/cctp"
	"github.com/relayport/relay_service/internal/infrastructure/adapters/wallet"
	"github.com/relayport/relay_service/internal/infrastructure/cache"
	"github.com/relayport/relay_service/internal/infrastructure/config"
	"github.com/relayport/relay_service/internal/infrastructure/database"
	"github.com/relayport/relay_service/internal/infrastructure/repositories"
	store_pruner "github.com/relayport/relay_service/internal/workers/store_pruner"
	"github.com/relayport/relay_service/pkg/graceful"
	"github.com/relayport/relay_service/pkg/logger"
	"github.com/relayport/relay_service/pkg/metrics"
	"github.com/relayport/relay_service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Initialize redis; notification pub/sub degrades gracefully without it
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Warn("Redis unavailable, notification events disabled", "error", err)
		redisClient = nil
	}

	// Repositories
	txRepo := repositories.NewTransactionRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	// Attestation client
	attestor := cctp.NewClient(cctp.Config{
		BaseURL:         cfg.Attestation.BaseURL,
		Environment:     cfg.Attestation.Environment,
		Timeout:         cfg.Attestation.RequestTimeout,
		PollInterval:    cfg.Attestation.PollInterval,
		MaxPollDuration: cfg.Attestation.MaxPollDuration,
	}, log.Zap())

	// Wallet signer
	signer := wallet.NewClient(wallet.Config{
		BaseURL: cfg.Wallet.BaseURL,
		Timeout: cfg.Wallet.RequestTimeout,
	}, log.Zap())

	// Notification synchronizer, mirror warmed from the durable store
	synchronizer := notifications.NewSynchronizer(notificationRepo, txRepo, redisClient, notifications.Config{
		MirrorCapacity: cfg.Notification.MirrorCapacity,
		EventChannel:   cfg.Notification.EventChannel,
	}, log.Zap())
	if err := synchronizer.Load(context.Background()); err != nil {
		log.Fatal("Failed to load notifications", "error", err)
	}

	// Orchestrator, resuming transfers interrupted by the previous run
	orch := orchestrator.NewService(txRepo, signer, attestor, synchronizer, log.Zap())
	if err := orch.ResumeIncomplete(context.Background()); err != nil {
		log.Error("Failed to resume incomplete transfers", "error", err)
	}

	// Retention pruner
	pruner := store_pruner.New(txRepo, notificationRepo, store_pruner.Config{
		CronSpec:          cfg.Retention.CronSpec,
		KeepTransactions:  cfg.Retention.KeepTransactions,
		KeepNotifications: cfg.Retention.KeepNotifications,
	}, log.Zap())
	if err := pruner.Start(context.Background()); err != nil {
		log.Fatal("Failed to start store pruner", "error", err)
	}

	// Router
	router := routes.SetupRouter(routes.Dependencies{
		Bridge:        handlers.NewBridgeHandlers(orch, log.Zap()),
		Notifications: handlers.NewNotificationHandlers(synchronizer, log.Zap()),
		Health:        handlers.NewHealthHandlers(db, redisClient, log.Zap()),
		Logger:        log,
		Environment:   cfg.Environment,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Export database pool stats
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
		}
	}()

	shutdown := graceful.NewShutdownManager(server, db.DB, log)
	shutdown.Register(orch)
	shutdown.Register(pruner)
	shutdown.Register(synchronizer)
	if redisClient != nil {
		shutdown.RegisterCloser(redisClient.Close)
	}

	go func() {
		log.Info("Starting server", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}
