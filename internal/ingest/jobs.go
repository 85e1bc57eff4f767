package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/madofuller/discordscraper/internal/metrics"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// JobTracker manages the backfill job lifecycle:
//
//	pending -> running -> completed | failed
//
// Failed jobs are terminal. A retry is a fresh job; it naturally resumes
// from the channel's export cursor, so already-imported events are replayed
// as no-ops rather than re-imported.
type JobTracker struct {
	db  store.DataStore
	log zerolog.Logger
}

// NewJobTracker creates a job tracker over the given store.
func NewJobTracker(db store.DataStore, log zerolog.Logger) *JobTracker {
	return &JobTracker{db: db, log: log.With().Str("component", "backfill").Logger()}
}

// Create registers a new pending job for a channel and time window. A nil
// windowEnd means open-ended.
func (t *JobTracker) Create(ctx context.Context, channelID int64, windowStart time.Time, windowEnd *time.Time) (*models.BackfillJob, error) {
	job := &models.BackfillJob{
		ID:          ulid.Make().String(),
		ChannelID:   channelID,
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd,
		Status:      models.JobPending,
	}
	if err := t.db.CreateBackfillJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create backfill job: %w", err)
	}

	t.log.Info().
		Str("job_id", job.ID).
		Int64("channel_id", channelID).
		Time("window_start", job.WindowStart).
		Msg("backfill job created")

	return job, nil
}

// Start moves a pending job to running. At most one job per channel runs at
// a time; the guard and the transition are a single atomic statement, so two
// concurrent starts cannot both succeed.
func (t *JobTracker) Start(ctx context.Context, id string) error {
	ok, err := t.db.StartBackfillJob(ctx, id)
	if err != nil {
		return fmt.Errorf("start backfill job %s: %w", id, err)
	}
	if ok {
		t.log.Info().Str("job_id", id).Msg("backfill job started")
		return nil
	}

	// The statement refused; a read distinguishes why.
	job, err := t.db.GetBackfillJob(ctx, id)
	if err != nil {
		return fmt.Errorf("classify rejected start %s: %w", id, err)
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", id, store.ErrJobNotFound)
	}
	if job.Status != models.JobPending {
		return fmt.Errorf("job %s is %s: %w", id, job.Status, store.ErrInvalidTransition)
	}
	return fmt.Errorf("channel %d: %w", job.ChannelID, store.ErrJobConflict)
}

// Complete moves a running job to completed, recording how many messages
// the run inserted.
func (t *JobTracker) Complete(ctx context.Context, id string, imported int) error {
	if err := t.finish(ctx, id, models.JobCompleted, imported, nil); err != nil {
		return err
	}
	t.log.Info().Str("job_id", id).Int("imported", imported).Msg("backfill job completed")
	return nil
}

// Fail moves a running job to failed with a diagnostic. Events already
// applied stay applied; the partial import remains visible and a retry job
// resumes from the cursor.
func (t *JobTracker) Fail(ctx context.Context, id string, imported int, detail string) error {
	if err := t.finish(ctx, id, models.JobFailed, imported, &detail); err != nil {
		return err
	}
	t.log.Warn().Str("job_id", id).Str("detail", detail).Msg("backfill job failed")
	return nil
}

// Cancel fails a running job with an operator-initiated reason, recording
// how far the run got. There is no separate cancelled state; a cancelled job
// is a failed job whose detail says so.
func (t *JobTracker) Cancel(ctx context.Context, id string, imported int, reason string) error {
	return t.Fail(ctx, id, imported, "cancelled: "+reason)
}

func (t *JobTracker) finish(ctx context.Context, id string, status models.JobStatus, imported int, detail *string) error {
	ok, err := t.db.FinishBackfillJob(ctx, id, status, imported, detail)
	if err != nil {
		return fmt.Errorf("finish backfill job %s: %w", id, err)
	}
	if !ok {
		job, err := t.db.GetBackfillJob(ctx, id)
		if err != nil {
			return fmt.Errorf("classify rejected finish %s: %w", id, err)
		}
		if job == nil {
			return fmt.Errorf("job %s: %w", id, store.ErrJobNotFound)
		}
		return fmt.Errorf("job %s is %s, not running: %w", id, job.Status, store.ErrInvalidTransition)
	}
	metrics.BackfillJobsFinished.WithLabelValues(string(status)).Inc()
	return nil
}

// Get retrieves a job by id, returning store.ErrJobNotFound for unknown ids.
func (t *JobTracker) Get(ctx context.Context, id string) (*models.BackfillJob, error) {
	job, err := t.db.GetBackfillJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, store.ErrJobNotFound)
	}
	return job, nil
}

// List retrieves jobs, newest first, optionally filtered by channel and
// status.
func (t *JobTracker) List(ctx context.Context, channelID int64, status models.JobStatus) ([]models.BackfillJob, error) {
	return t.db.ListBackfillJobs(ctx, channelID, status)
}
