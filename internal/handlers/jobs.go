package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// createJobRequest is the body of POST /jobs.
type createJobRequest struct {
	ChannelID   int64  `json:"channel_id"`
	WindowStart string `json:"window_start"`         // RFC 3339
	WindowEnd   string `json:"window_end,omitempty"` // RFC 3339, empty = open-ended
}

// CreateJob handles POST /jobs: registers a pending backfill job. The
// importer picks it up; creation never starts work by itself.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChannelID <= 0 {
		h.Error(w, http.StatusBadRequest, "channel_id is required")
		return
	}

	windowStart, err := time.Parse(time.RFC3339, req.WindowStart)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid window_start")
		return
	}
	var windowEnd *time.Time
	if req.WindowEnd != "" {
		t, err := time.Parse(time.RFC3339, req.WindowEnd)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid window_end")
			return
		}
		if t.Before(windowStart) {
			h.Error(w, http.StatusBadRequest, "window_end precedes window_start")
			return
		}
		windowEnd = &t
	}

	// The channel row may not exist yet if no event for it was seen.
	if err := h.db.UpsertChannel(r.Context(), &models.Channel{ChannelID: req.ChannelID}); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to register channel")
		return
	}

	job, err := h.jobs.Create(r.Context(), req.ChannelID, windowStart, windowEnd)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	h.JSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /jobs?channel=&status=.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var channelID int64
	if v := r.URL.Query().Get("channel"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid channel id")
			return
		}
		channelID = id
	}

	status := models.JobStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.JobPending, models.JobRunning, models.JobCompleted, models.JobFailed:
	default:
		h.Error(w, http.StatusBadRequest, "invalid status")
		return
	}

	jobs, err := h.jobs.List(r.Context(), channelID, status)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.BackfillJob{}
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// GetJob handles GET /jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			h.Error(w, http.StatusNotFound, "job not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	h.JSON(w, http.StatusOK, job)
}
