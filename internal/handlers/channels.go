package handlers

import (
	"net/http"

	"github.com/madofuller/discordscraper/internal/models"
)

// ListChannels handles GET /channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.db.ListChannels(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	if channels == nil {
		channels = []models.ChannelSummary{}
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

// GetChannel handles GET /channels/{id}.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	ch, err := h.db.GetChannel(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch channel")
		return
	}
	if ch == nil {
		h.Error(w, http.StatusNotFound, "channel not found")
		return
	}
	h.JSON(w, http.StatusOK, ch)
}
