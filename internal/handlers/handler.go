package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/madofuller/discordscraper/internal/ingest"
	"github.com/madofuller/discordscraper/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db      store.DataStore
	cache   *store.RedisStore // nil when Redis is not configured
	engine  *ingest.Engine
	cursors *ingest.CursorManager
	jobs    *ingest.JobTracker
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, cache *store.RedisStore, engine *ingest.Engine, cursors *ingest.CursorManager, jobs *ingest.JobTracker) *Handler {
	return &Handler{db: db, cache: cache, engine: engine, cursors: cursors, jobs: jobs}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// pathID parses a numeric URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
