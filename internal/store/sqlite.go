package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/madofuller/discordscraper/internal/models"
)

// SQLiteStore handles SQLite database operations. It implements the same
// reconciliation semantics as PostgresStore and backs the test suite and
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/archive.db". The special path
// ":memory:" opens an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/archive.db"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// An in-memory database exists per connection; the pool must not open a
	// second one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subnets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels (
		channel_id INTEGER PRIMARY KEY,
		subnet_id INTEGER REFERENCES subnets(id) ON DELETE SET NULL,
		name TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		bot INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id INTEGER PRIMARY KEY,
		channel_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		edited_at DATETIME,
		deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at DATETIME,
		attachments TEXT,
		embeds TEXT,
		reactions TEXT,
		imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages (channel_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_author ON messages (author_id);

	CREATE TABLE IF NOT EXISTS cursors (
		channel_id INTEGER NOT NULL,
		producer TEXT NOT NULL,
		position INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (channel_id, producer)
	);

	CREATE TABLE IF NOT EXISTS backfill_jobs (
		id TEXT PRIMARY KEY,
		channel_id INTEGER NOT NULL,
		window_start DATETIME NOT NULL,
		window_end DATETIME,
		status TEXT NOT NULL DEFAULT 'pending',
		messages_imported INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_backfill_jobs_channel_status ON backfill_jobs (channel_id, status);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// parseStoredTime decodes a timestamp that came back as TEXT. SQLite drops
// the column decltype on aggregate expressions, so MIN/MAX results arrive as
// strings in the driver's own formats.
func parseStoredTime(s string) (*time.Time, error) {
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable stored timestamp %q", s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	return parseStoredTime(ns.String)
}

// UpsertChannel creates a channel on first sighting or refreshes its
// metadata. Empty incoming name/topic never clobber known values.
func (s *SQLiteStore) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (channel_id, name, topic)
		VALUES (?, ?, ?)
		ON CONFLICT (channel_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE channels.name END,
			topic = CASE WHEN excluded.topic <> '' THEN excluded.topic ELSE channels.topic END,
			updated_at = CURRENT_TIMESTAMP
	`, ch.ChannelID, ch.Name, ch.Topic)
	return err
}

// GetChannel retrieves a channel by ID.
func (s *SQLiteStore) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch := &models.Channel{}
	err := s.db.QueryRowContext(ctx, `
		SELECT channel_id, subnet_id, name, topic, created_at, updated_at
		FROM channels WHERE channel_id = ?
	`, channelID).Scan(
		&ch.ChannelID,
		&ch.SubnetID,
		&ch.Name,
		&ch.Topic,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// ListChannels retrieves all channels with message counts, newest first.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]models.ChannelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.channel_id, c.name, COALESCE(s.name, ''),
		       COUNT(CASE WHEN NOT m.deleted THEN m.message_id END),
		       MAX(CASE WHEN NOT m.deleted THEN m.created_at END)
		FROM channels c
		LEFT JOIN subnets s ON s.id = c.subnet_id
		LEFT JOIN messages m ON m.channel_id = c.channel_id
		GROUP BY c.channel_id, c.name, s.name
		ORDER BY MAX(m.created_at) DESC, c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.ChannelSummary
	for rows.Next() {
		var c models.ChannelSummary
		var last sql.NullString
		if err := rows.Scan(&c.ChannelID, &c.Name, &c.Subnet, &c.MessageCount, &last); err != nil {
			return nil, err
		}
		if c.LastMessageAt, err = parseNullTime(last); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// UpsertSubnet creates or refreshes a subnet by name and returns its id.
func (s *SQLiteStore) UpsertSubnet(ctx context.Context, name, description string, tags []string) (int64, error) {
	var tagsJSON interface{}
	if tags != nil {
		b, err := json.Marshal(tags)
		if err != nil {
			return 0, err
		}
		tagsJSON = string(b)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subnets (name, description, tags)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE subnets.description END,
			tags = COALESCE(excluded.tags, subnets.tags)
		RETURNING id
	`, name, description, tagsJSON).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LinkChannelSubnet assigns a channel to a subnet.
func (s *SQLiteStore) LinkChannelSubnet(ctx context.Context, channelID, subnetID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels SET subnet_id = ?, updated_at = CURRENT_TIMESTAMP WHERE channel_id = ?
	`, subnetID, channelID)
	return err
}

// UpsertUser creates or refreshes an author row.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, display_name, bot)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END,
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
			bot = excluded.bot,
			updated_at = CURRENT_TIMESTAMP
	`, u.UserID, u.Username, u.DisplayName, u.Bot)
	return err
}

func blobArg(b json.RawMessage) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

// InsertMessage attempts an insert-if-absent and reports whether a new row
// was created.
func (s *SQLiteStore) InsertMessage(ctx context.Context, m *models.Message) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (message_id, channel_id, author_id, content, created_at, edited_at, attachments, embeds, reactions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING message_id
	`, m.MessageID, m.ChannelID, m.AuthorID, m.Content, m.CreatedAt.UTC(), timeArg(m.EditedAt),
		blobArg(m.Attachments), blobArg(m.Embeds), blobArg(m.Reactions)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// ApplyEdit mirrors the PostgreSQL conditional edit. SQLite cannot report
// insert-versus-update from a single upsert, so it runs a guarded UPDATE and
// an insert-if-absent inside one transaction. Scalar MAX returns NULL when
// either side is NULL, so the stored-NULL case falls through COALESCE to the
// incoming value.
func (s *SQLiteStore) ApplyEdit(ctx context.Context, m *models.Message) (applied, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET
			content = ?,
			edited_at = COALESCE(MAX(edited_at, ?), ?),
			attachments = ?,
			embeds = ?,
			reactions = ?
		WHERE message_id = ? AND NOT deleted
		  AND (edited_at IS NULL OR ? >= edited_at)
	`, m.Content, timeArg(m.EditedAt), timeArg(m.EditedAt),
		blobArg(m.Attachments), blobArg(m.Embeds), blobArg(m.Reactions),
		m.MessageID, timeArg(m.EditedAt))
	if err != nil {
		return false, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	if n > 0 {
		return true, false, tx.Commit()
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO messages (message_id, channel_id, author_id, content, created_at, edited_at, attachments, embeds, reactions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
	`, m.MessageID, m.ChannelID, m.AuthorID, m.Content, m.CreatedAt.UTC(), timeArg(m.EditedAt),
		blobArg(m.Attachments), blobArg(m.Embeds), blobArg(m.Reactions))
	if err != nil {
		return false, false, err
	}
	n, err = res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	if n == 0 {
		// The row exists but the guard refused: tombstoned or stale.
		return false, false, tx.Commit()
	}
	return true, true, tx.Commit()
}

// ApplyDelete writes a one-way tombstone.
func (s *SQLiteStore) ApplyDelete(ctx context.Context, messageID, channelID int64, deletedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, channel_id, author_id, content, created_at, deleted, deleted_at)
		VALUES (?, ?, 0, '', ?, 1, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			deleted = 1,
			deleted_at = COALESCE(messages.deleted_at, excluded.deleted_at)
	`, messageID, channelID, deletedAt.UTC(), deletedAt.UTC())
	return err
}

// UpdateMessageMetadata replaces only the blobs that are non-nil.
func (s *SQLiteStore) UpdateMessageMetadata(ctx context.Context, messageID int64, attachments, embeds, reactions json.RawMessage, allowDeleted bool) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE messages SET
			attachments = COALESCE(?, attachments),
			embeds = COALESCE(?, embeds),
			reactions = COALESCE(?, reactions)
		WHERE message_id = ? AND (NOT deleted OR ?)
		RETURNING message_id
	`, blobArg(attachments), blobArg(embeds), blobArg(reactions), messageID, allowDeleted).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanMessageRow(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	var attachments, embeds, reactions sql.NullString
	err := row.Scan(
		&m.MessageID,
		&m.ChannelID,
		&m.AuthorID,
		&m.Content,
		&m.CreatedAt,
		&m.EditedAt,
		&m.Deleted,
		&m.DeletedAt,
		&attachments,
		&embeds,
		&reactions,
		&m.ImportedAt,
	)
	if err != nil {
		return nil, err
	}
	if attachments.Valid {
		m.Attachments = json.RawMessage(attachments.String)
	}
	if embeds.Valid {
		m.Embeds = json.RawMessage(embeds.String)
	}
	if reactions.Valid {
		m.Reactions = json.RawMessage(reactions.String)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.ImportedAt = m.ImportedAt.UTC()
	if m.EditedAt != nil {
		t := m.EditedAt.UTC()
		m.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := m.DeletedAt.UTC()
		m.DeletedAt = &t
	}
	return m, nil
}

// GetMessage retrieves a message by ID, including tombstones.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID)
	m, err := s.scanMessageRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListMessages retrieves messages for a channel with optional filters,
// newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = ?`
	args := []interface{}{f.ChannelID}

	if !f.IncludeDeleted {
		query += ` AND NOT deleted`
	}
	if f.After != nil {
		query += ` AND created_at > ?`
		args = append(args, f.After.UTC())
	}
	if f.Before != nil {
		query += ` AND created_at < ?`
		args = append(args, f.Before.UTC())
	}
	if f.AuthorID != 0 {
		query += ` AND author_id = ?`
		args = append(args, f.AuthorID)
	}
	if f.Search != "" {
		query += ` AND content LIKE ?`
		args = append(args, "%"+f.Search+"%")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, message_id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := s.scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// SearchMessages performs a free-text content search across non-deleted
// messages, optionally restricted to a channel or subnet.
func (s *SQLiteStore) SearchMessages(ctx context.Context, term string, channelID int64, subnet string, limit int) ([]models.Message, error) {
	query := `
		SELECT m.message_id, m.channel_id, m.author_id, m.content, m.created_at, m.edited_at,
		       m.deleted, m.deleted_at, m.attachments, m.embeds, m.reactions, m.imported_at
		FROM messages m
		JOIN channels c ON c.channel_id = m.channel_id
		LEFT JOIN subnets s ON s.id = c.subnet_id
		WHERE m.content LIKE ? AND NOT m.deleted`
	args := []interface{}{"%" + term + "%"}

	if channelID != 0 {
		query += ` AND m.channel_id = ?`
		args = append(args, channelID)
	}
	if subnet != "" {
		query += ` AND s.name = ?`
		args = append(args, subnet)
	}

	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY m.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := s.scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// ChannelStats aggregates per-channel statistics over non-deleted messages.
func (s *SQLiteStore) ChannelStats(ctx context.Context, channelID int64) (*models.ChannelStats, error) {
	stats := &models.ChannelStats{ChannelID: channelID}

	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM messages WHERE channel_id = ? AND NOT deleted
	`, channelID).Scan(&stats.MessageCount, &first, &last)
	if err != nil {
		return nil, err
	}
	if stats.FirstMessage, err = parseNullTime(first); err != nil {
		return nil, err
	}
	if stats.LastMessage, err = parseNullTime(last); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.author_id, COALESCE(u.username, ''), COUNT(*)
		FROM messages m
		LEFT JOIN users u ON u.user_id = m.author_id
		WHERE m.channel_id = ? AND NOT m.deleted
		GROUP BY m.author_id, u.username
		ORDER BY COUNT(*) DESC
		LIMIT 10
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a models.AuthorCount
		if err := rows.Scan(&a.AuthorID, &a.Username, &a.Count); err != nil {
			return nil, err
		}
		stats.TopAuthors = append(stats.TopAuthors, a)
	}
	return stats, rows.Err()
}

// GetCursor returns the stored position for a (channel, producer) pair.
func (s *SQLiteStore) GetCursor(ctx context.Context, channelID int64, producer models.ProducerKind) (int64, bool, error) {
	var position int64
	err := s.db.QueryRowContext(ctx, `
		SELECT position FROM cursors WHERE channel_id = ? AND producer = ?
	`, channelID, string(producer)).Scan(&position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return position, true, nil
}

// AdvanceCursor moves a cursor forward as one conditional upsert.
func (s *SQLiteStore) AdvanceCursor(ctx context.Context, channelID int64, producer models.ProducerKind, position int64) (bool, error) {
	var stored int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cursors (channel_id, producer, position)
		VALUES (?, ?, ?)
		ON CONFLICT (channel_id, producer) DO UPDATE SET
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP
		WHERE excluded.position >= cursors.position
		RETURNING position
	`, channelID, string(producer), position).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateBackfillJob inserts a new pending job row.
func (s *SQLiteStore) CreateBackfillJob(ctx context.Context, job *models.BackfillJob) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_jobs (id, channel_id, window_start, window_end, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.ChannelID, job.WindowStart.UTC(), timeArg(job.WindowEnd), string(job.Status), now, now)
	return err
}

func (s *SQLiteStore) scanBackfillRow(row rowScanner) (*models.BackfillJob, error) {
	job := &models.BackfillJob{}
	var status string
	err := row.Scan(
		&job.ID,
		&job.ChannelID,
		&job.WindowStart,
		&job.WindowEnd,
		&status,
		&job.MessagesImported,
		&job.ErrorDetail,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return job, nil
}

// GetBackfillJob retrieves a job by id.
func (s *SQLiteStore) GetBackfillJob(ctx context.Context, id string) (*models.BackfillJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backfillColumns+` FROM backfill_jobs WHERE id = ?`, id)
	job, err := s.scanBackfillRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// ListBackfillJobs retrieves jobs, newest first, with optional filters.
func (s *SQLiteStore) ListBackfillJobs(ctx context.Context, channelID int64, status models.JobStatus) ([]models.BackfillJob, error) {
	query := `SELECT ` + backfillColumns + ` FROM backfill_jobs WHERE 1=1`
	var args []interface{}

	if channelID != 0 {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.BackfillJob
	for rows.Next() {
		job, err := s.scanBackfillRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// StartBackfillJob moves a pending job to running, provided no other job on
// the same channel is running.
func (s *SQLiteStore) StartBackfillJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backfill_jobs SET status = 'running', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM backfill_jobs b
			WHERE b.channel_id = backfill_jobs.channel_id AND b.status = 'running'
		  )
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishBackfillJob moves a running job to a terminal status.
func (s *SQLiteStore) FinishBackfillJob(ctx context.Context, id string, status models.JobStatus, imported int, errorDetail *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = ?, messages_imported = ?, error_detail = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'running'
	`, string(status), imported, errorDetail, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
