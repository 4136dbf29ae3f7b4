package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/inklift/inklift/internal/api"
	"github.com/inklift/inklift/internal/archive"
	"github.com/inklift/inklift/internal/cache"
	"github.com/inklift/inklift/internal/config"
	"github.com/inklift/inklift/internal/lifecycle"
	"github.com/inklift/inklift/internal/logger"
	"github.com/inklift/inklift/internal/middleware"
	"github.com/inklift/inklift/internal/notify"
	"github.com/inklift/inklift/internal/qa"
	"github.com/inklift/inklift/internal/store"
)

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: "stdout",
		Pretty: cfg.Env == "development",
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Msg("Starting application...")

	ctx := context.Background()

	// Initialize the store
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pg.Close()
		st = pg
		log.Info().Msg("Using Postgres store")
	} else {
		st = store.NewMemoryStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	// Initialize per-post locks
	var locks cache.Locks
	if cfg.RedisURL != "" {
		redisLocks, err := cache.NewRedisLocks(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis locks")
		}
		locks = redisLocks
	} else {
		locks = cache.NewLocalLocks()
		log.Warn().Msg("REDIS_URL not set, per-post locks are process-local")
	}
	defer func() {
		log.Info().Msg("Closing lock client...")
		if err := locks.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing lock client")
		}
	}()

	// Load the QA policy
	policy := qa.DefaultPolicy()
	if cfg.QaPolicyPath != "" {
		loaded, err := qa.LoadPolicy(cfg.QaPolicyPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.QaPolicyPath).Msg("Failed to load QA policy")
		}
		policy = loaded
	}

	engine := lifecycle.NewEngine(st, locks, policy.RequiredChecks)
	checker := qa.NewChecker(policy)
	notifier := notify.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)

	// Archive exporter is optional: skip without R2 credentials
	var exporter *archive.Exporter
	if cfg.ArchiveEnabled() {
		var err error
		exporter, err = archive.NewExporter(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize archive exporter")
		}
	} else {
		log.Info().Msg("R2 not configured, archive export disabled")
	}

	// Create Fiber app with custom config
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: middleware.ErrorHandler,
	})

	handlers := api.NewHandlers(cfg, engine, st, checker, notifier, exporter, locks)
	api.SetupRoutes(app, handlers, cfg)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
