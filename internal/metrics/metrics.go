package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archive_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Ingestion metrics
	EventsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_events_normalized_total",
			Help: "Raw producer events successfully normalized",
		},
		[]string{"source", "kind"},
	)

	EventsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_events_malformed_total",
			Help: "Raw producer events dropped as unparseable",
		},
		[]string{"source"},
	)

	MessagesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_messages_inserted_total",
			Help: "Messages inserted for the first time",
		},
		[]string{"source"},
	)

	DuplicateEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_duplicate_events_total",
			Help: "Creation events for already-archived messages",
		},
	)

	// Reconciliation metrics
	EditsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_edits_applied_total",
			Help: "Edit events that changed a message",
		},
	)

	StaleEditsIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_stale_edits_ignored_total",
			Help: "Edit events older than the stored edit",
		},
	)

	TombstonesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_tombstones_written_total",
			Help: "Delete events applied as tombstones",
		},
	)

	TombstoneBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_tombstone_blocked_total",
			Help: "Events ignored because the message is tombstoned",
		},
		[]string{"kind"},
	)

	MetadataMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_metadata_merges_total",
			Help: "Metadata-only updates applied",
		},
	)

	// Cursor and backfill metrics
	CursorRegressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_cursor_regressions_total",
			Help: "Rejected attempts to move a cursor backward",
		},
		[]string{"producer"},
	)

	BackfillJobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_backfill_jobs_finished_total",
			Help: "Backfill jobs reaching a terminal status",
		},
		[]string{"status"},
	)
)
