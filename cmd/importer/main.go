// The importer walks a directory of chat-export JSON partitions and feeds
// them through the ingestion engine. Each partition runs under a backfill
// job; progress is resumable through the channel's export cursor, so
// re-running over the same directory only applies what is new.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/madofuller/discordscraper/internal/config"
	"github.com/madofuller/discordscraper/internal/event"
	"github.com/madofuller/discordscraper/internal/export"
	"github.com/madofuller/discordscraper/internal/ingest"
	"github.com/madofuller/discordscraper/internal/metrics"
	"github.com/madofuller/discordscraper/internal/models"
	"github.com/madofuller/discordscraper/internal/store"
)

func main() {
	cfg := config.Load()

	dir := flag.String("dir", cfg.ExportDir, "directory of export JSON partitions")
	flag.Parse()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	logger = logger.With().Str("run_id", uuid.New().String()).Logger()

	// The signal context stops ingestion between records; cleanup below runs
	// on a fresh context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db store.DataStore
	if cfg.DatabaseURL != "" {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
	}
	defer db.Close()

	engine := ingest.NewEngine(db, ingest.Options{
		TombstoneMetadataUpdates: cfg.TombstoneMetadataUpdates,
	}, logger)
	cursors := ingest.NewCursorManager(db, logger)
	jobs := ingest.NewJobTracker(db, logger)

	paths, err := export.ListPartitions(*dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", *dir).Msg("cannot list export partitions")
	}
	if len(paths) == 0 {
		logger.Info().Str("dir", *dir).Msg("no export partitions found")
		return
	}
	logger.Info().Int("partitions", len(paths)).Str("dir", *dir).Msg("starting import")

	var totalInserted int
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		inserted, err := importPartition(ctx, logger, db, engine, cursors, jobs, path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("partition import failed")
			continue
		}
		totalInserted += inserted
	}

	if ctx.Err() != nil {
		logger.Warn().Msg("import interrupted")
	}
	logger.Info().Int("inserted", totalInserted).Msg("import finished")
}

// importPartition runs one export file under one backfill job and returns
// how many messages it inserted.
func importPartition(ctx context.Context, logger zerolog.Logger, db store.DataStore, engine *ingest.Engine, cursors *ingest.CursorManager, jobs *ingest.JobTracker, path string) (int, error) {
	f, err := export.ReadFile(path)
	if err != nil {
		return 0, err
	}
	channelID, err := f.ChannelID()
	if err != nil {
		return 0, err
	}

	log := logger.With().Str("file", path).Int64("channel_id", channelID).Logger()

	if err := db.UpsertChannel(ctx, &models.Channel{
		ChannelID: channelID,
		Name:      f.Channel.Name,
		Topic:     f.Channel.Topic,
	}); err != nil {
		return 0, fmt.Errorf("upsert channel: %w", err)
	}

	windowStart, windowEnd := partitionWindow(f.Messages)

	job, err := jobs.Create(ctx, channelID, windowStart, windowEnd)
	if err != nil {
		return 0, err
	}
	if err := jobs.Start(ctx, job.ID); err != nil {
		if errors.Is(err, store.ErrJobConflict) {
			log.Warn().Str("job_id", job.ID).Msg("another job is running on this channel, skipping")
			return 0, nil
		}
		return 0, err
	}

	position, _, err := cursors.Position(ctx, channelID, models.ProducerExport)
	if err != nil {
		return 0, err
	}

	inserted := 0
	maxID := position
	for _, rec := range f.Messages {
		if ctx.Err() != nil {
			// Cleanup must not use the cancelled context.
			cleanup, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = jobs.Cancel(cleanup, job.ID, inserted, "interrupted by signal")
			return inserted, ctx.Err()
		}

		ev, err := event.NormalizeExport(rec, channelID)
		if err != nil {
			metrics.EventsMalformed.WithLabelValues(string(event.SourceExport)).Inc()
			log.Warn().Err(err).Str("record_id", rec.ID).Msg("malformed export record dropped")
			continue
		}
		metrics.EventsNormalized.WithLabelValues(string(ev.Source), ev.Kind.String()).Inc()

		// Resume: everything at or below the cursor was already imported.
		if ev.MessageID <= position {
			continue
		}

		outcome, err := engine.Process(ctx, ev)
		if err != nil {
			failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = jobs.Fail(failCtx, job.ID, inserted, err.Error())
			return inserted, err
		}
		if outcome == ingest.OutcomeInserted {
			inserted++
		}
		if ev.MessageID > maxID {
			maxID = ev.MessageID
		}
	}

	if maxID > position {
		if err := cursors.Advance(ctx, channelID, models.ProducerExport, maxID); err != nil {
			_ = jobs.Fail(ctx, job.ID, inserted, err.Error())
			return inserted, err
		}
	}

	if err := jobs.Complete(ctx, job.ID, inserted); err != nil {
		return inserted, err
	}

	log.Info().Int("inserted", inserted).Int("records", len(f.Messages)).Msg("partition imported")
	return inserted, nil
}

// partitionWindow derives the job's time window from the records. Malformed
// timestamps are ignored here; normalization deals with them record by
// record.
func partitionWindow(records []event.ExportMessage) (time.Time, *time.Time) {
	var first, last time.Time
	for _, rec := range records {
		t, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			continue
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	if first.IsZero() {
		first = time.Now().UTC()
		return first, nil
	}
	end := last.UTC()
	return first.UTC(), &end
}
