package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madofuller/discordscraper/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertChannel creates a channel on first sighting or refreshes its
// metadata last-write-wins. Empty incoming name/topic never clobber known
// values (delete notifications carry only the channel id).
func (s *PostgresStore) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (channel_id, name, topic)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE channels.name END,
			topic = CASE WHEN EXCLUDED.topic <> '' THEN EXCLUDED.topic ELSE channels.topic END,
			updated_at = NOW()
	`, ch.ChannelID, ch.Name, ch.Topic)
	return err
}

// GetChannel retrieves a channel by ID.
func (s *PostgresStore) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch := &models.Channel{}
	err := s.pool.QueryRow(ctx, `
		SELECT channel_id, subnet_id, name, topic, created_at, updated_at
		FROM channels WHERE channel_id = $1
	`, channelID).Scan(
		&ch.ChannelID,
		&ch.SubnetID,
		&ch.Name,
		&ch.Topic,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// ListChannels retrieves all channels with message counts, newest first.
func (s *PostgresStore) ListChannels(ctx context.Context) ([]models.ChannelSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.channel_id, c.name, COALESCE(s.name, ''),
		       COUNT(m.message_id) FILTER (WHERE NOT m.deleted),
		       MAX(m.created_at) FILTER (WHERE NOT m.deleted)
		FROM channels c
		LEFT JOIN subnets s ON s.id = c.subnet_id
		LEFT JOIN messages m ON m.channel_id = c.channel_id
		GROUP BY c.channel_id, c.name, s.name
		ORDER BY MAX(m.created_at) DESC NULLS LAST, c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.ChannelSummary
	for rows.Next() {
		var c models.ChannelSummary
		if err := rows.Scan(&c.ChannelID, &c.Name, &c.Subnet, &c.MessageCount, &c.LastMessageAt); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// UpsertSubnet creates or refreshes a subnet by name and returns its id.
func (s *PostgresStore) UpsertSubnet(ctx context.Context, name, description string, tags []string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subnets (name, description, tags)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE subnets.description END,
			tags = COALESCE(EXCLUDED.tags, subnets.tags)
		RETURNING id
	`, name, description, tags).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LinkChannelSubnet assigns a channel to a subnet.
func (s *PostgresStore) LinkChannelSubnet(ctx context.Context, channelID, subnetID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE channels SET subnet_id = $2, updated_at = NOW() WHERE channel_id = $1
	`, channelID, subnetID)
	return err
}

// UpsertUser creates or refreshes an author row last-write-wins.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, display_name, bot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END,
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END,
			bot = EXCLUDED.bot,
			updated_at = NOW()
	`, u.UserID, u.Username, u.DisplayName, u.Bot)
	return err
}

// InsertMessage attempts an insert-if-absent and reports whether a new row
// was created. A conflict on message_id is the idempotent no-op path: the
// same message arriving from both producers converges to one row with no
// locking beyond the primary-key constraint.
func (s *PostgresStore) InsertMessage(ctx context.Context, m *models.Message) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (message_id, channel_id, author_id, content, created_at, edited_at, attachments, embeds, reactions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING message_id
	`, m.MessageID, m.ChannelID, m.AuthorID, m.Content, m.CreatedAt, m.EditedAt,
		[]byte(m.Attachments), []byte(m.Embeds), []byte(m.Reactions)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil // already present
		}
		return false, err
	}
	return true, nil
}

// ApplyEdit applies an edit as one conditional upsert. If the row is absent
// (the edit outraced the original creation) it is synthesized and inserted
// reports true; if present, content and blobs are replaced and edited_at
// moves to the greater of the stored and incoming values. Tombstoned rows
// and stale edits (older edited_at) leave the row untouched and report
// applied false. (xmax = 0) holds only for freshly inserted rows.
func (s *PostgresStore) ApplyEdit(ctx context.Context, m *models.Message) (applied, inserted bool, err error) {
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (message_id, channel_id, author_id, content, created_at, edited_at, attachments, embeds, reactions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO UPDATE SET
			content = EXCLUDED.content,
			edited_at = GREATEST(messages.edited_at, EXCLUDED.edited_at),
			attachments = EXCLUDED.attachments,
			embeds = EXCLUDED.embeds,
			reactions = EXCLUDED.reactions
		WHERE NOT messages.deleted
		  AND (messages.edited_at IS NULL OR EXCLUDED.edited_at >= messages.edited_at)
		RETURNING (xmax = 0)
	`, m.MessageID, m.ChannelID, m.AuthorID, m.Content, m.CreatedAt, m.EditedAt,
		[]byte(m.Attachments), []byte(m.Embeds), []byte(m.Reactions)).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, inserted, nil
}

// ApplyDelete writes a one-way tombstone. If the row is absent a placeholder
// with empty content is inserted so a later-arriving creation cannot
// resurrect deleted content; if present, the flag is set and deleted_at
// keeps its first value. Replays are no-ops.
func (s *PostgresStore) ApplyDelete(ctx context.Context, messageID, channelID int64, deletedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (message_id, channel_id, author_id, content, created_at, deleted, deleted_at)
		VALUES ($1, $2, 0, '', $3, TRUE, $3)
		ON CONFLICT (message_id) DO UPDATE SET
			deleted = TRUE,
			deleted_at = COALESCE(messages.deleted_at, EXCLUDED.deleted_at)
	`, messageID, channelID, deletedAt)
	return err
}

// UpdateMessageMetadata replaces only the blobs that are non-nil, leaving
// content and edited_at alone. Tombstoned rows are skipped unless
// allowDeleted is set (the configurable tombstone-metadata policy).
func (s *PostgresStore) UpdateMessageMetadata(ctx context.Context, messageID int64, attachments, embeds, reactions json.RawMessage, allowDeleted bool) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		UPDATE messages SET
			attachments = COALESCE($2, attachments),
			embeds = COALESCE($3, embeds),
			reactions = COALESCE($4, reactions)
		WHERE message_id = $1 AND (NOT deleted OR $5)
		RETURNING message_id
	`, messageID, []byte(attachments), []byte(embeds), []byte(reactions), allowDeleted).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

const messageColumns = `message_id, channel_id, author_id, content, created_at, edited_at, deleted, deleted_at, attachments, embeds, reactions, imported_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	var attachments, embeds, reactions []byte
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
	m.Attachments = attachments
	m.Embeds = embeds
	m.Reactions = reactions
	return m, nil
}

// GetMessage retrieves a message by ID, including tombstones.
func (s *PostgresStore) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = $1`, messageID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListMessages retrieves messages for a channel with optional filters,
// newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = $1`
	args := []interface{}{f.ChannelID}

	if !f.IncludeDeleted {
		query += ` AND NOT deleted`
	}
	if f.After != nil {
		args = append(args, *f.After)
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	}
	if f.Before != nil {
		args = append(args, *f.Before)
		query += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}
	if f.AuthorID != 0 {
		args = append(args, f.AuthorID)
		query += fmt.Sprintf(` AND author_id = $%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(` AND content ILIKE $%d`, len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, message_id DESC LIMIT $%d`, len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// SearchMessages performs a free-text content search across non-deleted
// messages, optionally restricted to a channel or subnet.
func (s *PostgresStore) SearchMessages(ctx context.Context, term string, channelID int64, subnet string, limit int) ([]models.Message, error) {
	query := `
		SELECT m.message_id, m.channel_id, m.author_id, m.content, m.created_at, m.edited_at,
		       m.deleted, m.deleted_at, m.attachments, m.embeds, m.reactions, m.imported_at
		FROM messages m
		JOIN channels c ON c.channel_id = m.channel_id
		LEFT JOIN subnets s ON s.id = c.subnet_id
		WHERE m.content ILIKE $1 AND NOT m.deleted`
	args := []interface{}{"%" + term + "%"}

	if channelID != 0 {
		args = append(args, channelID)
		query += fmt.Sprintf(` AND m.channel_id = $%d`, len(args))
	}
	if subnet != "" {
		args = append(args, subnet)
		query += fmt.Sprintf(` AND s.name = $%d`, len(args))
	}

	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// ChannelStats aggregates per-channel statistics over non-deleted messages.
func (s *PostgresStore) ChannelStats(ctx context.Context, channelID int64) (*models.ChannelStats, error) {
	stats := &models.ChannelStats{ChannelID: channelID}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM messages WHERE channel_id = $1 AND NOT deleted
	`, channelID).Scan(&stats.MessageCount, &stats.FirstMessage, &stats.LastMessage)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.author_id, COALESCE(u.username, ''), COUNT(*)
		FROM messages m
		LEFT JOIN users u ON u.user_id = m.author_id
		WHERE m.channel_id = $1 AND NOT m.deleted
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
// The second return is false when no cursor exists yet.
func (s *PostgresStore) GetCursor(ctx context.Context, channelID int64, producer models.ProducerKind) (int64, bool, error) {
	var position int64
	err := s.pool.QueryRow(ctx, `
		SELECT position FROM cursors WHERE channel_id = $1 AND producer = $2
	`, channelID, string(producer)).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return position, true, nil
}

// AdvanceCursor moves a cursor forward as one conditional upsert. Equal
// positions are idempotent re-advances; strictly backward attempts change
// nothing and report false.
func (s *PostgresStore) AdvanceCursor(ctx context.Context, channelID int64, producer models.ProducerKind, position int64) (bool, error) {
	var stored int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cursors (channel_id, producer, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, producer) DO UPDATE SET
			position = EXCLUDED.position,
			updated_at = NOW()
		WHERE EXCLUDED.position >= cursors.position
		RETURNING position
	`, channelID, string(producer), position).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil // regression attempt
		}
		return false, err
	}
	return true, nil
}

// CreateBackfillJob inserts a new pending job row.
func (s *PostgresStore) CreateBackfillJob(ctx context.Context, job *models.BackfillJob) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO backfill_jobs (id, channel_id, window_start, window_end, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, job.ID, job.ChannelID, job.WindowStart, job.WindowEnd, string(job.Status)).
		Scan(&job.CreatedAt, &job.UpdatedAt)
}

const backfillColumns = `id, channel_id, window_start, window_end, status, messages_imported, error_detail, created_at, updated_at`

func scanBackfillJob(row pgx.Row) (*models.BackfillJob, error) {
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
func (s *PostgresStore) GetBackfillJob(ctx context.Context, id string) (*models.BackfillJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+backfillColumns+` FROM backfill_jobs WHERE id = $1`, id)
	job, err := scanBackfillJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// ListBackfillJobs retrieves jobs, newest first, with optional filters.
func (s *PostgresStore) ListBackfillJobs(ctx context.Context, channelID int64, status models.JobStatus) ([]models.BackfillJob, error) {
	query := `SELECT ` + backfillColumns + ` FROM backfill_jobs WHERE 1=1`
	var args []interface{}

	if channelID != 0 {
		args = append(args, channelID)
		query += fmt.Sprintf(` AND channel_id = $%d`, len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.BackfillJob
	for rows.Next() {
		job, err := scanBackfillJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// StartBackfillJob moves a pending job to running, provided no other job on
// the same channel is running. The guard and the transition are one atomic
// statement.
func (s *PostgresStore) StartBackfillJob(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backfill_jobs SET status = 'running', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM backfill_jobs b
			WHERE b.channel_id = backfill_jobs.channel_id AND b.status = 'running'
		  )
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FinishBackfillJob moves a running job to a terminal status. Events already
// applied to the store are never rolled back; partial progress stays visible
// and resumable via the cursor.
func (s *PostgresStore) FinishBackfillJob(ctx context.Context, id string, status models.JobStatus, imported int, errorDetail *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE backfill_jobs
		SET status = $2, messages_imported = $3, error_detail = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, string(status), imported, errorDetail)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
