package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wakewise/notification-engine/api/rest"
	"github.com/wakewise/notification-engine/internal/config"
	"github.com/wakewise/notification-engine/internal/database"
	"github.com/wakewise/notification-engine/internal/devicectx"
	"github.com/wakewise/notification-engine/internal/monitoring"
	"github.com/wakewise/notification-engine/internal/patterns"
	"github.com/wakewise/notification-engine/internal/platform"
	"github.com/wakewise/notification-engine/internal/queue"
	"github.com/wakewise/notification-engine/internal/scheduler"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Adaptive Notification Scheduler")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize metrics
	metrics := monitoring.NewMetrics()
	logger.Info("Metrics initialized")

	// Connect to PostgreSQL (audit store)
	postgres, err := database.NewPostgresDB(database.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer postgres.Close()

	// Initialize database schema
	if err := postgres.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}
	logger.Info("Audit store connected and schema initialized")

	// Connect to Redis (durable state store)
	redis, err := database.NewRedisClient(database.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("State store connected")

	// Initialize Kafka producer for lifecycle events
	producer := queue.NewProducer(queue.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer producer.Close()
	logger.Info("Lifecycle event producer initialized")

	// Initialize the FCM platform notifier
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier, err := platform.NewFCMNotifier(ctx, platform.FCMConfig{
		CredentialsPath: cfg.Firebase.CredentialsPath,
		DeviceToken:     cfg.Firebase.DeviceToken,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize platform notifier", zap.Error(err))
	}

	// Device context provider, backed by the snapshot the companion app
	// publishes to Redis
	provider := devicectx.NewProvider(redis, cfg.Engine.ContextRefreshInterval, logger)
	go provider.Run(ctx)
	logger.Info("Device context provider started",
		zap.Duration("refresh_interval", cfg.Engine.ContextRefreshInterval))

	// Behavior pattern store, rehydrated from Redis
	store := patterns.NewStore(logger)
	if saved, err := redis.LoadPatterns(ctx); err != nil {
		logger.Warn("Failed to load behavior patterns", zap.Error(err))
	} else {
		for key, p := range saved {
			store.Restore(key, p)
		}
		logger.Info("Behavior patterns restored", zap.Int("buckets", len(saved)))
	}

	// Scheduling config: a previously persisted runtime config wins over the
	// file/env defaults
	schedCfg := cfg.Scheduling
	if persisted, ok, err := redis.LoadConfig(ctx); err != nil {
		logger.Warn("Failed to load persisted scheduling config", zap.Error(err))
	} else if ok {
		schedCfg = persisted
		logger.Info("Persisted scheduling config restored")
	}

	// Initialize the scheduler engine
	engine := scheduler.New(schedCfg, provider, store, notifier, postgres, redis, producer, metrics, logger)

	// Re-arm timers for notifications that were in flight at last shutdown
	if inflight, err := redis.LoadInflight(ctx); err != nil {
		logger.Warn("Failed to load in-flight notifications", zap.Error(err))
	} else {
		engine.Restore(inflight)
	}

	// Retention purge loop for the audit store and in-memory terminal records
	go func() {
		ticker := time.NewTicker(cfg.Engine.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.Engine.AuditRetention)
				purged, err := postgres.PurgeBefore(ctx, cutoff)
				if err != nil {
					logger.Error("Audit retention purge failed", zap.Error(err))
					continue
				}
				dropped := engine.PurgeTerminal(cutoff)
				logger.Info("Retention purge completed",
					zap.Int64("audit_rows", purged),
					zap.Int("terminal_records", dropped),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}()

	// Initialize REST API handler
	handler := rest.NewHandler(engine, store, metrics, logger)
	router := handler.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Start metrics server if enabled
	if cfg.Metrics.Enabled {
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metrics.Handler(),
		}

		go func() {
			logger.Info("Starting metrics server", zap.Int("port", cfg.Metrics.Port))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")

	// Graceful shutdown. In-flight notifications survive in Redis and are
	// re-armed on the next start.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Scheduler exited")
}
