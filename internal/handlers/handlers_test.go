package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madofuller/discordscraper/internal/api"
	"github.com/madofuller/discordscraper/internal/ingest"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.DataStore) {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	log := zerolog.Nop()
	engine := ingest.NewEngine(db, ingest.Options{}, log)
	cursors := ingest.NewCursorManager(db, log)
	jobs := ingest.NewJobTracker(db, log)

	srv := httptest.NewServer(api.NewRouter(log, db, nil, engine, cursors, jobs))
	t.Cleanup(srv.Close)
	return srv, db
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func livePayload(event string, id, channel int64, content, ts string) string {
	return fmt.Sprintf(`{
		"event": %q,
		"data": {
			"id": "%d",
			"channel_id": "%d",
			"channel_name": "general",
			"author": {"id": "42", "username": "alice"},
			"content": %q,
			"timestamp": %q
		}
	}`, event, id, channel, content, ts)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)

	var health struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
}

func TestIngestCreateAndFetch(t *testing.T) {
	srv, db := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 100, 200, "hello world", "2025-06-01T12:00:00Z"))

	var out struct {
		Outcome string `json:"outcome"`
	}
	decodeBody(t, resp, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inserted", out.Outcome)

	// The live cursor moved to the new frontier.
	pos, ok, err := db.GetCursor(context.Background(), 200, models.ProducerLive)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), pos)

	resp, err = http.Get(srv.URL + "/channels/200/messages/100")
	require.NoError(t, err)
	var msg models.Message
	decodeBody(t, resp, &msg)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", msg.Content)
}

func TestIngestDuplicateAndOldMessageDoNotFail(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 100, 200, "newer", "2025-06-01T12:00:00Z"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A backfilled older message arrives over the live path: the cursor
	// regression must be swallowed, not surfaced as a server error.
	resp = postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 50, 200, "older", "2025-06-01T11:00:00Z"))
	var out struct {
		Outcome string `json:"outcome"`
	}
	decodeBody(t, resp, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inserted", out.Outcome)

	resp = postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 100, 200, "newer", "2025-06-01T12:00:00Z"))
	decodeBody(t, resp, &out)
	assert.Equal(t, "already_present", out.Outcome)
}

func TestIngestMalformedRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/events", `{"event":"MESSAGE_CREATE","data":{"id":"abc"}}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestDeleteHidesMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 100, 200, "soon gone", "2025-06-01T12:00:00Z"))
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/ingest/events",
		`{"event":"MESSAGE_DELETE","data":{"id":"100","channel_id":"200"}}`)
	var out struct {
		Outcome string `json:"outcome"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, "tombstoned", out.Outcome)

	// Hidden from listings by default, visible with include_deleted.
	var listing struct {
		Messages []models.Message `json:"messages"`
	}
	resp, err := http.Get(srv.URL + "/channels/200/messages")
	require.NoError(t, err)
	decodeBody(t, resp, &listing)
	assert.Empty(t, listing.Messages)

	resp, err = http.Get(srv.URL + "/channels/200/messages?include_deleted=true")
	require.NoError(t, err)
	decodeBody(t, resp, &listing)
	require.Len(t, listing.Messages, 1)
	assert.True(t, listing.Messages[0].Deleted)
	assert.NotNil(t, listing.Messages[0].DeletedAt)
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 100, 200, "validator weights updated", "2025-06-01T12:00:00Z"))
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 101, 200, "unrelated chatter", "2025-06-01T12:01:00Z"))
	resp.Body.Close()

	var result struct {
		Messages []models.Message `json:"messages"`
	}
	resp, err := http.Get(srv.URL + "/search?q=validator")
	require.NoError(t, err)
	decodeBody(t, resp, &result)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, int64(100), result.Messages[0].MessageID)

	resp, err = http.Get(srv.URL + "/search")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChannelStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/ingest/events",
		livePayload("MESSAGE_CREATE", 100, 200, "a", "2025-06-01T12:00:00Z"))
	resp.Body.Close()

	var stats models.ChannelStats
	resp, err := http.Get(srv.URL + "/channels/200/stats")
	require.NoError(t, err)
	decodeBody(t, resp, &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), stats.MessageCount)
	require.Len(t, stats.TopAuthors, 1)
	assert.Equal(t, "alice", stats.TopAuthors[0].Username)

	resp, err = http.Get(srv.URL + "/channels/999/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/jobs",
		`{"channel_id": 200, "window_start": "2025-01-01T00:00:00Z"}`)
	var job models.BackfillJob
	decodeBody(t, resp, &job)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobPending, job.Status)

	resp, err := http.Get(srv.URL + "/jobs/" + job.ID)
	require.NoError(t, err)
	var fetched models.BackfillJob
	decodeBody(t, resp, &fetched)
	assert.Equal(t, job.ID, fetched.ID)

	var listing struct {
		Jobs []models.BackfillJob `json:"jobs"`
	}
	resp, err = http.Get(srv.URL + "/jobs?channel=200")
	require.NoError(t, err)
	decodeBody(t, resp, &listing)
	assert.Len(t, listing.Jobs, 1)

	resp, err = http.Get(srv.URL + "/jobs/01JUNKNOWNJOBIDXXXXXXXXXXX")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/jobs", `{"channel_id": 0, "window_start": "2025-01-01T00:00:00Z"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/jobs",
		`{"channel_id": 200, "window_start": "2025-06-01T00:00:00Z", "window_end": "2025-01-01T00:00:00Z"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
