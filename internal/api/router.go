package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/madofuller/discordscraper/internal/api/middleware"
	"github.com/madofuller/discordscraper/internal/handlers"
	"github.com/madofuller/discordscraper/internal/ingest"
	"github.com/madofuller/discordscraper/internal/store"
)

// NewRouter creates and configures the HTTP router. cache may be nil.
func NewRouter(logger zerolog.Logger, db store.DataStore, cache *store.RedisStore, engine *ingest.Engine, cursors *ingest.CursorManager, jobs *ingest.JobTracker) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(1 * 1024 * 1024)) // live payloads carry embeds and attachments
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the read API is consumed from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, cache, engine, cursors, jobs)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Read API
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/channels", h.ListChannels)
	r.Get("/channels/{id}", h.GetChannel)
	r.Get("/channels/{id}/messages", h.ListMessages)
	r.Get("/channels/{id}/messages/{mid}", h.GetMessage)
	r.Get("/channels/{id}/stats", h.ChannelStats)
	r.Get("/search", h.Search)

	// Ingestion driver (the live bot POSTs here)
	r.Post("/ingest/events", h.IngestEvent)

	// Backfill jobs
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)

	return r
}
