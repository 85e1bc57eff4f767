package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/madofuller/discordscraper/internal/models"
)

const (
	messageTTL = 24 * time.Hour
	searchTTL  = 24 * time.Hour
)

// RedisStore is an optional read-side cache over the archive: recent
// messages per channel plus a token index for fast search. Everything here
// is best-effort and expires; the SQL store stays authoritative.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// messageKey returns the key holding one cached message body.
func messageKey(messageID int64) string {
	return fmt.Sprintf("msg:%d", messageID)
}

// channelRecentKey returns the key for a channel's recency index.
func channelRecentKey(channelID int64) string {
	return fmt.Sprintf("channel:%d:recent", channelID)
}

// searchWordKey returns the key for a search word index.
func searchWordKey(word string) string {
	return fmt.Sprintf("search:words:%s", strings.ToLower(word))
}

// CacheMessage stores the current state of a message and indexes it by
// channel recency. Snowflake IDs exceed float64 precision, so the zset score
// is the creation time in milliseconds and the member is the ID string.
func (s *RedisStore) CacheMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, messageKey(msg.MessageID), data, messageTTL).Err(); err != nil {
		return err
	}

	key := channelRecentKey(msg.ChannelID)
	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.CreatedAt.UnixMilli()),
		Member: strconv.FormatInt(msg.MessageID, 10),
	}).Err()
	if err != nil {
		return err
	}
	s.client.Expire(ctx, key, messageTTL)

	// Search indexing is best-effort.
	_ = s.indexMessage(ctx, msg)

	return nil
}

// InvalidateMessage drops a cached message after an edit or tombstone so the
// next read falls through to the authoritative store.
func (s *RedisStore) InvalidateMessage(ctx context.Context, channelID, messageID int64) {
	s.client.Del(ctx, messageKey(messageID))
	s.client.ZRem(ctx, channelRecentKey(channelID), strconv.FormatInt(messageID, 10))
}

// GetMessage retrieves a cached message. nil means cache miss.
func (s *RedisStore) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	data, err := s.client.Get(ctx, messageKey(messageID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecentMessages returns cached messages for a channel, newest first.
// Entries whose body already expired are skipped.
func (s *RedisStore) RecentMessages(ctx context.Context, channelID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	ids, err := s.client.ZRevRange(ctx, channelRecentKey(channelID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		msg, err := s.GetMessage(ctx, id)
		if err != nil || msg == nil {
			continue
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// wordRegex matches word characters for search indexing.
var wordRegex = regexp.MustCompile(`\w+`)

// Tokenize splits free text into lowercase index tokens, dropping words
// shorter than three characters.
func Tokenize(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)

	seen := make(map[string]bool)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true
		tokens = append(tokens, word)
	}
	return tokens
}

// indexMessage indexes a message's content for search.
func (s *RedisStore) indexMessage(ctx context.Context, msg *models.Message) error {
	ref := fmt.Sprintf("%d:%d", msg.ChannelID, msg.MessageID)
	score := float64(msg.CreatedAt.UnixMilli())

	for _, word := range Tokenize(msg.Content) {
		key := searchWordKey(word)
		s.client.ZAdd(ctx, key, redis.Z{
			Score:  score,
			Member: ref,
		})
		s.client.Expire(ctx, key, searchTTL)
	}
	return nil
}

// SearchMessages searches the token index for messages containing all of the
// given tokens, newest first. Results are limited to what is still cached;
// callers fall back to the SQL store for a full search.
func (s *RedisStore) SearchMessages(ctx context.Context, tokens []string, channelID int64, limit int) ([]models.Message, error) {
	if len(tokens) == 0 {
		return []models.Message{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = searchWordKey(t)
	}

	var refs []string

	if len(keys) == 1 {
		refs, _ = s.client.ZRevRangeByScore(ctx, keys[0], &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "+inf",
			Count: int64(limit * 3), // fetch extra for filtering
		}).Result()
	} else {
		tempKey := fmt.Sprintf("search:temp:%d", time.Now().UnixNano())

		s.client.ZInterStore(ctx, tempKey, &redis.ZStore{
			Keys:      keys,
			Aggregate: "MIN",
		})
		s.client.Expire(ctx, tempKey, 10*time.Second)

		refs, _ = s.client.ZRevRangeByScore(ctx, tempKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "+inf",
			Count: int64(limit * 3),
		}).Result()

		s.client.Del(ctx, tempKey)
	}

	messages := make([]models.Message, 0, limit)
	for _, ref := range refs {
		parts := strings.SplitN(ref, ":", 2)
		if len(parts) != 2 {
			continue
		}
		refChannel, err1 := strconv.ParseInt(parts[0], 10, 64)
		refMessage, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}

		if channelID != 0 && refChannel != channelID {
			continue
		}

		msg, err := s.GetMessage(ctx, refMessage)
		if err != nil || msg == nil || msg.Deleted {
			continue // expired or tombstoned
		}

		messages = append(messages, *msg)

		if len(messages) >= limit {
			break
		}
	}

	return messages, nil
}
