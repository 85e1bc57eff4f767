package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// ListMessages handles GET /channels/{id}/messages.
//
// Query parameters: limit, offset, after, before (RFC 3339), author,
// search, include_deleted. Tombstoned messages are filtered out unless
// include_deleted=true.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	channelID, ok := pathID(r, "id")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	q := r.URL.Query()
	filter := store.MessageFilter{
		ChannelID:      channelID,
		Search:         q.Get("search"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Limit:          queryInt(r, "limit", 100),
		Offset:         queryInt(r, "offset", 0),
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}

	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid after timestamp")
			return
		}
		filter.After = &t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		filter.Before = &t
	}
	if v := q.Get("author"); v != "" {
		authorID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid author id")
			return
		}
		filter.AuthorID = authorID
	}

	messages, err := h.db.ListMessages(r.Context(), filter)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"channel_id": channelID,
		"messages":   messages,
	})
}

// GetMessage handles GET /channels/{id}/messages/{mid}. Tombstones are
// returned with their deleted flag set and empty content.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	channelID, ok := pathID(r, "id")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	messageID, ok := pathID(r, "mid")
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid message id")
		return
	}

	// Cache first; fall through to the store on miss.
	if h.cache != nil {
		if msg, err := h.cache.GetMessage(r.Context(), messageID); err == nil && msg != nil && msg.ChannelID == channelID {
			h.JSON(w, http.StatusOK, msg)
			return
		}
	}

	msg, err := h.db.GetMessage(r.Context(), messageID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	if msg == nil || msg.ChannelID != channelID {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}
	h.JSON(w, http.StatusOK, msg)
}
