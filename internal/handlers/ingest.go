package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/madofuller/discordscraper/internal/event"
	"github.com/madofuller/discordscraper/internal/ingest"
	"github.com/madofuller/discordscraper/internal/metrics"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// IngestEvent handles POST /ingest/events: one raw live-stream payload per
// request. The payload is normalized, applied, and the live cursor advanced.
//
// Malformed payloads are dropped and counted; they never poison the
// pipeline. Cursor regressions are expected here (edits and deletes of old
// messages carry old IDs) and are not errors.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	ev, err := event.NormalizeLive(body)
	if err != nil {
		metrics.EventsMalformed.WithLabelValues(string(event.SourceLive)).Inc()
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.EventsNormalized.WithLabelValues(string(ev.Source), ev.Kind.String()).Inc()

	outcome, err := h.engine.Process(r.Context(), ev)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to apply event")
		return
	}

	// Only creations move the live frontier forward: edit and delete
	// notifications reference messages from arbitrarily far back.
	if ev.Kind == event.Created {
		if err := h.cursors.Advance(r.Context(), ev.ChannelID, models.ProducerLive, ev.MessageID); err != nil {
			if !errors.Is(err, store.ErrCursorRegression) {
				h.Error(w, http.StatusInternalServerError, "failed to advance cursor")
				return
			}
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"outcome":    string(outcome),
		"message_id": ev.MessageID,
	})

	// Keep the cache coherent: new state in, stale state out.
	if h.cache != nil {
		switch outcome {
		case ingest.OutcomeInserted:
			if msg, err := h.db.GetMessage(r.Context(), ev.MessageID); err == nil && msg != nil {
				_ = h.cache.CacheMessage(r.Context(), msg)
			}
		case ingest.OutcomeEdited, ingest.OutcomeTombstoned, ingest.OutcomeMetadataMerged:
			h.cache.InvalidateMessage(r.Context(), ev.ChannelID, ev.MessageID)
		}
	}
}
