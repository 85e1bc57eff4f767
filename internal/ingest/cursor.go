package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/madofuller/discordscraper/internal/metrics"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

// CursorManager tracks per-(channel, producer) resume positions. Positions
// are snowflake message IDs and only ever move forward; re-advancing to the
// current position is a no-op, which lets producers replay their last
// position safely after a crash.
type CursorManager struct {
	db  store.DataStore
	log zerolog.Logger
}

// NewCursorManager creates a cursor manager over the given store.
func NewCursorManager(db store.DataStore, log zerolog.Logger) *CursorManager {
	return &CursorManager{db: db, log: log.With().Str("component", "cursors").Logger()}
}

// Position returns the stored cursor for a (channel, producer) pair. The
// second return is false when the producer has never advanced on this
// channel; ingestion then starts from the beginning.
func (c *CursorManager) Position(ctx context.Context, channelID int64, producer models.ProducerKind) (int64, bool, error) {
	return c.db.GetCursor(ctx, channelID, producer)
}

// Advance moves the cursor to position. Equal positions succeed silently;
// an attempt to move backward leaves the cursor untouched and returns an
// error wrapping store.ErrCursorRegression.
func (c *CursorManager) Advance(ctx context.Context, channelID int64, producer models.ProducerKind, position int64) error {
	ok, err := c.db.AdvanceCursor(ctx, channelID, producer, position)
	if err != nil {
		return fmt.Errorf("advance cursor %d/%s: %w", channelID, producer, err)
	}
	if !ok {
		metrics.CursorRegressions.WithLabelValues(string(producer)).Inc()
		c.log.Warn().
			Int64("channel_id", channelID).
			Str("producer", string(producer)).
			Int64("position", position).
			Msg("cursor regression rejected")
		return fmt.Errorf("cursor %d/%s to %d: %w", channelID, producer, position, store.ErrCursorRegression)
	}
	return nil
}
