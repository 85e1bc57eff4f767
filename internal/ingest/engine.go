// Package ingest applies canonical events to the archive. The engine owns
// the reconciliation policy (idempotent inserts, monotonic edits, one-way
// tombstones); the conditional statements that enforce it live in the store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/madofuller/discordscraper/internal/event"
	"github.com/madofuller/discordscraper/internal/metrics"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// Outcome describes what applying one event did to the archive.
type Outcome string

const (
	// OutcomeInserted means a new message row was created.
	OutcomeInserted Outcome = "inserted"
	// OutcomeAlreadyPresent means the message was archived before; nothing
	// changed.
	OutcomeAlreadyPresent Outcome = "already_present"
	// OutcomeEdited means an edit replaced the stored content.
	OutcomeEdited Outcome = "edited"
	// OutcomeStaleEdit means the edit was older than the stored one and was
	// ignored.
	OutcomeStaleEdit Outcome = "stale_edit"
	// OutcomeTombstoned means a delete tombstone was written (or re-applied).
	OutcomeTombstoned Outcome = "tombstoned"
	// OutcomeBlockedTombstone means the event targeted a tombstoned message
	// and was ignored.
	OutcomeBlockedTombstone Outcome = "blocked_tombstone"
	// OutcomeMetadataMerged means a metadata-only update touched the blobs.
	OutcomeMetadataMerged Outcome = "metadata_merged"
	// OutcomeSkipped means the event had nothing to apply to.
	OutcomeSkipped Outcome = "skipped"
)

// Options tunes reconciliation policy.
type Options struct {
	// TombstoneMetadataUpdates allows metadata-only updates to land on
	// tombstoned rows. Content and the deleted flag stay untouched either
	// way. Off by default: a deleted message is frozen entirely.
	TombstoneMetadataUpdates bool
}

// Engine applies canonical events to a DataStore.
type Engine struct {
	db   store.DataStore
	opts Options
	log  zerolog.Logger
}

// NewEngine creates an engine over the given store.
func NewEngine(db store.DataStore, opts Options, log zerolog.Logger) *Engine {
	return &Engine{db: db, opts: opts, log: log.With().Str("component", "ingest").Logger()}
}

// Process applies one event: it keeps the channel and author rows current,
// then dispatches on the event kind. The returned outcome is for counters
// and logs; callers never need it for correctness.
func (e *Engine) Process(ctx context.Context, ev event.Event) (Outcome, error) {
	if err := e.db.UpsertChannel(ctx, &models.Channel{
		ChannelID: ev.ChannelID,
		Name:      ev.ChannelName,
		Topic:     ev.ChannelTopic,
	}); err != nil {
		return OutcomeSkipped, fmt.Errorf("upsert channel %d: %w", ev.ChannelID, err)
	}

	if ev.Author != nil {
		if err := e.db.UpsertUser(ctx, &models.User{
			UserID:      ev.Author.ID,
			Username:    ev.Author.Username,
			DisplayName: ev.Author.DisplayName,
			Bot:         ev.Author.Bot,
		}); err != nil {
			return OutcomeSkipped, fmt.Errorf("upsert user %d: %w", ev.Author.ID, err)
		}
	}

	var (
		outcome Outcome
		err     error
	)
	switch ev.Kind {
	case event.Created, event.Unchanged:
		outcome, err = e.applyCreate(ctx, ev)
	case event.Updated:
		if ev.MetadataOnly {
			outcome, err = e.applyMetadata(ctx, ev)
		} else {
			outcome, err = e.applyEdit(ctx, ev)
		}
	case event.Deleted:
		outcome, err = e.applyDelete(ctx, ev)
	default:
		return OutcomeSkipped, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
	if err != nil {
		return outcome, err
	}

	e.log.Debug().
		Int64("message_id", ev.MessageID).
		Int64("channel_id", ev.ChannelID).
		Str("source", string(ev.Source)).
		Str("kind", ev.Kind.String()).
		Str("outcome", string(outcome)).
		Msg("event applied")

	return outcome, nil
}

func messageFromEvent(ev event.Event) *models.Message {
	return &models.Message{
		MessageID:   ev.MessageID,
		ChannelID:   ev.ChannelID,
		AuthorID:    ev.AuthorID,
		Content:     ev.Content,
		CreatedAt:   ev.CreatedAt,
		EditedAt:    ev.EditedAt,
		Attachments: ev.Attachments,
		Embeds:      ev.Embeds,
		Reactions:   ev.Reactions,
	}
}

// applyCreate is insert-if-absent. Seeing the same message again, from
// either producer, is the expected overlap case and changes nothing.
func (e *Engine) applyCreate(ctx context.Context, ev event.Event) (Outcome, error) {
	inserted, err := e.db.InsertMessage(ctx, messageFromEvent(ev))
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("insert message %d: %w", ev.MessageID, err)
	}
	if inserted {
		metrics.MessagesInserted.WithLabelValues(string(ev.Source)).Inc()
		return OutcomeInserted, nil
	}
	metrics.DuplicateEvents.Inc()
	return OutcomeAlreadyPresent, nil
}

// applyEdit runs the conditional edit upsert. An edit that outraces the
// original creation synthesizes the row, which counts as new data, not as an
// edit. A refused write triggers a follow-up read that classifies
// stale-versus-tombstoned for the counters only.
func (e *Engine) applyEdit(ctx context.Context, ev event.Event) (Outcome, error) {
	applied, inserted, err := e.db.ApplyEdit(ctx, messageFromEvent(ev))
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("apply edit %d: %w", ev.MessageID, err)
	}
	if inserted {
		metrics.MessagesInserted.WithLabelValues(string(ev.Source)).Inc()
		return OutcomeInserted, nil
	}
	if applied {
		metrics.EditsApplied.Inc()
		return OutcomeEdited, nil
	}

	stored, err := e.db.GetMessage(ctx, ev.MessageID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("classify rejected edit %d: %w", ev.MessageID, err)
	}
	if stored != nil && stored.Deleted {
		metrics.TombstoneBlocked.WithLabelValues(ev.Kind.String()).Inc()
		e.log.Debug().Int64("message_id", ev.MessageID).Msg("edit ignored, message tombstoned")
		return OutcomeBlockedTombstone, nil
	}

	metrics.StaleEditsIgnored.Inc()
	e.log.Debug().Int64("message_id", ev.MessageID).Msg("stale edit ignored")
	return OutcomeStaleEdit, nil
}

// applyMetadata merges blob-only changes without touching content or
// edited_at.
func (e *Engine) applyMetadata(ctx context.Context, ev event.Event) (Outcome, error) {
	applied, err := e.db.UpdateMessageMetadata(ctx, ev.MessageID,
		ev.Attachments, ev.Embeds, ev.Reactions, e.opts.TombstoneMetadataUpdates)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("merge metadata %d: %w", ev.MessageID, err)
	}
	if applied {
		metrics.MetadataMerges.Inc()
		return OutcomeMetadataMerged, nil
	}

	stored, err := e.db.GetMessage(ctx, ev.MessageID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("classify rejected merge %d: %w", ev.MessageID, err)
	}
	if stored != nil && stored.Deleted {
		metrics.TombstoneBlocked.WithLabelValues(ev.Kind.String()).Inc()
		return OutcomeBlockedTombstone, nil
	}

	// No row to merge into; reaction events for unarchived messages end
	// here.
	return OutcomeSkipped, nil
}

// applyDelete writes the one-way tombstone. Replays and deletes of unknown
// messages both land here and both converge to a tombstoned row.
func (e *Engine) applyDelete(ctx context.Context, ev event.Event) (Outcome, error) {
	deletedAt := ev.CreatedAt
	if deletedAt.IsZero() {
		deletedAt = time.Now().UTC()
	}
	if err := e.db.ApplyDelete(ctx, ev.MessageID, ev.ChannelID, deletedAt); err != nil {
		return OutcomeSkipped, fmt.Errorf("apply delete %d: %w", ev.MessageID, err)
	}
	metrics.TombstonesWritten.Inc()
	return OutcomeTombstoned, nil
}
