package handlers

import (
	"net/http"
	"strconv"

	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// Search handles GET /search?q=&channel=&subnet=&limit=.
//
// When Redis is configured and the query has no subnet filter, the token
// index answers first; anything it cannot answer falls back to the SQL
// store, which is authoritative.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("q")
	if term == "" {
		h.Error(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	var channelID int64
	if v := q.Get("channel"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid channel id")
			return
		}
		channelID = id
	}
	subnet := q.Get("subnet")

	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	if h.cache != nil && subnet == "" {
		tokens := store.Tokenize(term)
		if results, err := h.cache.SearchMessages(r.Context(), tokens, channelID, limit); err == nil && len(results) > 0 {
			h.JSON(w, http.StatusOK, map[string]interface{}{
				"query":    term,
				"messages": results,
				"cached":   true,
			})
			return
		}
	}

	results, err := h.db.SearchMessages(r.Context(), term, channelID, subnet, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []models.Message{}
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"query":    term,
		"messages": results,
	})
}
