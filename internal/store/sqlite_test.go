package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madofuller/discordscraper/internal/models"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func seedMessage(t *testing.T, s *SQLiteStore, id, channelID, authorID int64, content string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, &models.Channel{ChannelID: channelID}))
	inserted, err := s.InsertMessage(ctx, &models.Message{
		MessageID: id,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: at,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestInsertMessageReportsDuplicate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedMessage(t, s, 1, 200, 42, "hello", base)

	inserted, err := s.InsertMessage(ctx, &models.Message{
		MessageID: 1, ChannelID: 200, AuthorID: 42, Content: "other", CreatedAt: base,
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	msg, err := s.GetMessage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
}

func TestGetMessageMissingIsNilNil(t *testing.T) {
	s := newStore(t)

	msg, err := s.GetMessage(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestListMessagesFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedMessage(t, s, 1, 200, 42, "first post", base)
	seedMessage(t, s, 2, 200, 42, "second post", base.Add(time.Minute))
	seedMessage(t, s, 3, 200, 99, "from someone else", base.Add(2*time.Minute))
	seedMessage(t, s, 4, 201, 42, "other channel", base)
	require.NoError(t, s.ApplyDelete(ctx, 2, 200, base.Add(time.Hour)))

	// Deleted rows are filtered out by default.
	msgs, err := s.ListMessages(ctx, MessageFilter{ChannelID: 200})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Newest first.
	assert.Equal(t, int64(3), msgs[0].MessageID)
	assert.Equal(t, int64(1), msgs[1].MessageID)

	msgs, err = s.ListMessages(ctx, MessageFilter{ChannelID: 200, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	msgs, err = s.ListMessages(ctx, MessageFilter{ChannelID: 200, AuthorID: 99})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(3), msgs[0].MessageID)

	after := base.Add(30 * time.Second)
	msgs, err = s.ListMessages(ctx, MessageFilter{ChannelID: 200, After: &after})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(3), msgs[0].MessageID)

	msgs, err = s.ListMessages(ctx, MessageFilter{ChannelID: 200, Search: "first"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].MessageID)

	msgs, err = s.ListMessages(ctx, MessageFilter{ChannelID: 200, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	msgs, err = s.ListMessages(ctx, MessageFilter{ChannelID: 200, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].MessageID)
}

func TestApplyEditGuards(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedMessage(t, s, 1, 200, 42, "v1", base)

	editedAt := base.Add(5 * time.Minute)
	applied, inserted, err := s.ApplyEdit(ctx, &models.Message{
		MessageID: 1, ChannelID: 200, AuthorID: 42, Content: "v2",
		CreatedAt: base, EditedAt: &editedAt,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.False(t, inserted)

	// Older edit refused.
	stale := base.Add(time.Minute)
	applied, inserted, err = s.ApplyEdit(ctx, &models.Message{
		MessageID: 1, ChannelID: 200, AuthorID: 42, Content: "v1.5",
		CreatedAt: base, EditedAt: &stale,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, inserted)

	msg, err := s.GetMessage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v2", msg.Content)
}

func TestApplyEditSynthesizesMissingRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChannel(ctx, &models.Channel{ChannelID: 200}))

	editedAt := base.Add(5 * time.Minute)
	applied, inserted, err := s.ApplyEdit(ctx, &models.Message{
		MessageID: 1, ChannelID: 200, AuthorID: 42, Content: "edit first",
		CreatedAt: base, EditedAt: &editedAt,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, inserted)

	// A later edit of the now-existing row is an update.
	later := base.Add(10 * time.Minute)
	applied, inserted, err = s.ApplyEdit(ctx, &models.Message{
		MessageID: 1, ChannelID: 200, AuthorID: 42, Content: "edit again",
		CreatedAt: base, EditedAt: &later,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.False(t, inserted)

	// An edit refused by a tombstone reports neither.
	require.NoError(t, s.ApplyDelete(ctx, 2, 200, base))
	applied, inserted, err = s.ApplyEdit(ctx, &models.Message{
		MessageID: 2, ChannelID: 200, AuthorID: 42, Content: "necromancy",
		CreatedAt: base, EditedAt: &later,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, inserted)
}

func TestUpdateMessageMetadataMergesBlobsIndividually(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedMessage(t, s, 1, 200, 42, "hello", base)

	applied, err := s.UpdateMessageMetadata(ctx, 1,
		json.RawMessage(`[{"url":"a.png"}]`), nil, nil, false)
	require.NoError(t, err)
	assert.True(t, applied)

	// A later reactions-only merge must not clear attachments.
	applied, err = s.UpdateMessageMetadata(ctx, 1,
		nil, nil, json.RawMessage(`[{"emoji":"👍"}]`), false)
	require.NoError(t, err)
	assert.True(t, applied)

	msg, err := s.GetMessage(ctx, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"url":"a.png"}]`, string(msg.Attachments))
	assert.JSONEq(t, `[{"emoji":"👍"}]`, string(msg.Reactions))
	assert.Equal(t, "hello", msg.Content)
}

func TestChannelUpsertKeepsKnownMetadata(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChannel(ctx, &models.Channel{ChannelID: 200, Name: "general", Topic: "chat"}))
	// Delete notifications carry only the channel id.
	require.NoError(t, s.UpsertChannel(ctx, &models.Channel{ChannelID: 200}))

	ch, err := s.GetChannel(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, "chat", ch.Topic)

	// A rename does land.
	require.NoError(t, s.UpsertChannel(ctx, &models.Channel{ChannelID: 200, Name: "general-2"}))
	ch, err = s.GetChannel(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, "general-2", ch.Name)
	assert.Equal(t, "chat", ch.Topic)
}

func TestSearchMessagesWithSubnetFilter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedMessage(t, s, 1, 200, 42, "the miners are busy", base)
	seedMessage(t, s, 2, 201, 42, "miners everywhere", base.Add(time.Minute))
	require.NoError(t, s.ApplyDelete(ctx, 2, 201, base.Add(time.Hour)))
	seedMessage(t, s, 3, 202, 42, "nothing relevant", base)

	subnetID, err := s.UpsertSubnet(ctx, "mining", "mining discussion", []string{"compute"})
	require.NoError(t, err)
	require.NoError(t, s.LinkChannelSubnet(ctx, 200, subnetID))

	// Tombstones never surface in search.
	results, err := s.SearchMessages(ctx, "miners", 0, "", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].MessageID)

	results, err = s.SearchMessages(ctx, "miners", 0, "mining", 50)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.SearchMessages(ctx, "miners", 0, "other-subnet", 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChannelStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &models.User{UserID: 42, Username: "alice"}))
	require.NoError(t, s.UpsertUser(ctx, &models.User{UserID: 99, Username: "bob"}))

	seedMessage(t, s, 1, 200, 42, "a", base)
	seedMessage(t, s, 2, 200, 42, "b", base.Add(time.Minute))
	seedMessage(t, s, 3, 200, 99, "c", base.Add(2*time.Minute))
	require.NoError(t, s.ApplyDelete(ctx, 3, 200, base.Add(time.Hour)))

	stats, err := s.ChannelStats(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.MessageCount)
	require.NotNil(t, stats.FirstMessage)
	require.NotNil(t, stats.LastMessage)
	assert.Equal(t, base, *stats.FirstMessage)
	assert.Equal(t, base.Add(time.Minute), *stats.LastMessage)
	require.Len(t, stats.TopAuthors, 1)
	assert.Equal(t, "alice", stats.TopAuthors[0].Username)
	assert.Equal(t, int64(2), stats.TopAuthors[0].Count)
}

func TestChannelStatsEmptyChannel(t *testing.T) {
	s := newStore(t)

	stats, err := s.ChannelStats(context.Background(), 999)
	require.NoError(t, err)
	assert.Zero(t, stats.MessageCount)
	assert.Nil(t, stats.FirstMessage)
	assert.Nil(t, stats.LastMessage)
	assert.Empty(t, stats.TopAuthors)
}

func TestListChannelsCountsLiveMessagesOnly(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seedMessage(t, s, 1, 200, 42, "a", base)
	seedMessage(t, s, 2, 200, 42, "b", base.Add(time.Minute))
	require.NoError(t, s.ApplyDelete(ctx, 2, 200, base.Add(time.Hour)))
	require.NoError(t, s.UpsertChannel(ctx, &models.Channel{ChannelID: 201, Name: "quiet"}))

	channels, err := s.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	byID := map[int64]models.ChannelSummary{}
	for _, c := range channels {
		byID[c.ChannelID] = c
	}
	assert.Equal(t, int64(1), byID[200].MessageCount)
	require.NotNil(t, byID[200].LastMessageAt)
	assert.Equal(t, base, *byID[200].LastMessageAt)
	assert.Equal(t, int64(0), byID[201].MessageCount)
	assert.Nil(t, byID[201].LastMessageAt)
}

func TestUserUpsertLastWriteWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &models.User{UserID: 42, Username: "alice", DisplayName: "Alice"}))
	// Empty fields never clobber known metadata.
	require.NoError(t, s.UpsertUser(ctx, &models.User{UserID: 42}))
	require.NoError(t, s.UpsertUser(ctx, &models.User{UserID: 42, Username: "alice2"}))

	// Verified through the stats join, the only read path for users.
	seedMessage(t, s, 1, 200, 42, "x", base)
	stats, err := s.ChannelStats(ctx, 200)
	require.NoError(t, err)
	require.Len(t, stats.TopAuthors, 1)
	assert.Equal(t, "alice2", stats.TopAuthors[0].Username)
}
