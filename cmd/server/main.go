package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/madofuller/discordscraper/internal/api"
	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/ingest"
	"github.com/madofuller/discordscraper/internal/store"
	"github.com/madofuller/discordscraper/internal/subnets"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Open the archive store: PostgreSQL when configured, SQLite otherwise.
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize Redis cache (optional)
	var cache *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		cache, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer cache.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Apply the subnet classification mapping
	if cfg.SubnetsFile != "" {
		mapping, err := subnets.Load(cfg.SubnetsFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SubnetsFile).Msg("subnet mapping load failed")
		}
		if err := mapping.Apply(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("subnet mapping apply failed")
		}
		logger.Info().Int("subnets", len(mapping.Subnets)).Msg("subnet mapping applied")
	}

	// Wire the ingestion pipeline
	engine := ingest.NewEngine(db, ingest.Options{
		TombstoneMetadataUpdates: cfg.TombstoneMetadataUpdates,
	}, logger)
	cursors := ingest.NewCursorManager(db, logger)
	jobs := ingest.NewJobTracker(db, logger)

	// Create router
	router := api.NewRouter(logger, db, cache, engine, cursors, jobs)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting archive server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
