package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

func newTestTracker(t *testing.T) *JobTracker {
	t.Helper()
	return NewJobTracker(newTestStore(t), zerolog.Nop())
}

func TestJobLifecycle(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Nil(t, job.WindowEnd)

	require.NoError(t, tr.Start(ctx, job.ID))
	got, err := tr.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, got.Status)

	require.NoError(t, tr.Complete(ctx, job.ID, 1234))
	got, err = tr.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 1234, got.MessagesImported)
	assert.Nil(t, got.ErrorDetail)
}

func TestJobFailureIsTerminal(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, job.ID))
	require.NoError(t, tr.Fail(ctx, job.ID, 57, "export file truncated"))

	got, err := tr.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	// Partial progress stays recorded; a retry is a fresh job.
	assert.Equal(t, 57, got.MessagesImported)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, "export file truncated", *got.ErrorDetail)

	// No transition leaves failed.
	err = tr.Start(ctx, job.ID)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
	err = tr.Complete(ctx, job.ID, 100)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestJobStartConflictOnSameChannel(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)
	second, err := tr.Create(ctx, 200, base.Add(time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, tr.Start(ctx, first.ID))

	// Only one job per channel may run.
	err = tr.Start(ctx, second.ID)
	require.ErrorIs(t, err, store.ErrJobConflict)

	got, err := tr.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)

	// Finishing the first clears the way.
	require.NoError(t, tr.Complete(ctx, first.ID, 0))
	require.NoError(t, tr.Start(ctx, second.ID))
}

func TestJobStartOtherChannelUnaffected(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)
	b, err := tr.Create(ctx, 201, base, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Start(ctx, a.ID))
	require.NoError(t, tr.Start(ctx, b.ID))
}

func TestJobCompletePendingIsInvalid(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)

	err = tr.Complete(ctx, job.ID, 10)
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestJobNotFound(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Get(ctx, "01JXXXXXXXXXXXXXXXXXXXXXXX")
	require.ErrorIs(t, err, store.ErrJobNotFound)

	err = tr.Start(ctx, "01JXXXXXXXXXXXXXXXXXXXXXXX")
	require.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestJobCancelRecordsReason(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	job, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, job.ID))
	require.NoError(t, tr.Cancel(ctx, job.ID, 33, "interrupted by signal"))

	got, err := tr.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	// Progress made before the interrupt stays on the record.
	assert.Equal(t, 33, got.MessagesImported)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, "cancelled: interrupted by signal", *got.ErrorDetail)
}

func TestJobList(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.Create(ctx, 200, base, nil)
	require.NoError(t, err)
	_, err = tr.Create(ctx, 201, base, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Start(ctx, a.ID))

	all, err := tr.List(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running, err := tr.List(ctx, 0, models.JobRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	byChannel, err := tr.List(ctx, 201, "")
	require.NoError(t, err)
	require.Len(t, byChannel, 1)
	assert.Equal(t, int64(201), byChannel[0].ChannelID)
}
