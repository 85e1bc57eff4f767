package handlers

import (
	"net/http"

	"github.com/madofuller/discordscraper/internal/models"
)

// ChannelStats handles GET /channels/{id}/stats.
func (h *Handler) ChannelStats(w http.ResponseWriter, r *http.Request) {
	channelID, ok := pathID(r, "id")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	ch, err := h.db.GetChannel(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch channel")
		return
	}
	if ch == nil {
		h.Error(w, http.StatusNotFound, "channel not found")
		return
	}

	stats, err := h.db.ChannelStats(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	if stats.TopAuthors == nil {
		stats.TopAuthors = []models.AuthorCount{}
	}
	h.JSON(w, http.StatusOK, stats)
}
