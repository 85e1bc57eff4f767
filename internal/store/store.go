package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/madofuller/discordscraper/internal/models"
)

var (
	// ErrCursorRegression is returned when an advance would move a cursor
	// backward. The stored cursor is left untouched.
	ErrCursorRegression = errors.New("cursor position regression")

	// ErrJobConflict is returned when starting a job while another job for
	// the same channel is already running.
	ErrJobConflict = errors.New("another backfill job is running for this channel")

	// ErrInvalidTransition is returned for backfill job transitions that
	// the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid backfill job transition")

	// ErrJobNotFound is returned when a backfill job id is unknown.
	ErrJobNotFound = errors.New("backfill job not found")
)

// MessageFilter selects messages for the query endpoints. Deleted rows are
// excluded unless IncludeDeleted is set.
type MessageFilter struct {
	ChannelID      int64
	After          *time.Time
	Before         *time.Time
	AuthorID       int64
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// DataStore is the persistence interface for the archive. Both
// PostgresStore and SQLiteStore implement it.
//
// Every mutation below is a single conditional statement evaluated
// atomically by the store; the reconciliation guarantees (insert-if-absent,
// edit monotonicity, one-way tombstones, cursor monotonicity) live in those
// statements, never in read-then-write sequences.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Channel / subnet / user operations
	UpsertChannel(ctx context.Context, ch *models.Channel) error
	GetChannel(ctx context.Context, channelID int64) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.ChannelSummary, error)
	UpsertSubnet(ctx context.Context, name, description string, tags []string) (int64, error)
	LinkChannelSubnet(ctx context.Context, channelID, subnetID int64) error
	UpsertUser(ctx context.Context, u *models.User) error

	// Message operations
	InsertMessage(ctx context.Context, m *models.Message) (bool, error)
	ApplyEdit(ctx context.Context, m *models.Message) (applied, inserted bool, err error)
	ApplyDelete(ctx context.Context, messageID, channelID int64, deletedAt time.Time) error
	UpdateMessageMetadata(ctx context.Context, messageID int64, attachments, embeds, reactions json.RawMessage, allowDeleted bool) (bool, error)
	GetMessage(ctx context.Context, messageID int64) (*models.Message, error)
	ListMessages(ctx context.Context, f MessageFilter) ([]models.Message, error)
	SearchMessages(ctx context.Context, term string, channelID int64, subnet string, limit int) ([]models.Message, error)
	ChannelStats(ctx context.Context, channelID int64) (*models.ChannelStats, error)

	// Cursor operations
	GetCursor(ctx context.Context, channelID int64, producer models.ProducerKind) (int64, bool, error)
	AdvanceCursor(ctx context.Context, channelID int64, producer models.ProducerKind, position int64) (bool, error)

	// Backfill job operations
	CreateBackfillJob(ctx context.Context, job *models.BackfillJob) error
	GetBackfillJob(ctx context.Context, id string) (*models.BackfillJob, error)
	ListBackfillJobs(ctx context.Context, channelID int64, status models.JobStatus) ([]models.BackfillJob, error)
	StartBackfillJob(ctx context.Context, id string) (bool, error)
	FinishBackfillJob(ctx context.Context, id string, status models.JobStatus, imported int, errorDetail *string) (bool, error)
}
