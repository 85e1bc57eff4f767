package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NormalizationError reports a raw payload that cannot be mapped into the
// canonical model. Such events are dropped and counted, never retried.
type NormalizationError struct {
	Source Source
	Reason string
	Cause  error
}

func (e *NormalizationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("normalize %s event: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("normalize %s event: %s", e.Source, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Cause }

// Live gateway event names, matching what the scraper bot forwards.
const (
	liveMessageCreate  = "MESSAGE_CREATE"
	liveMessageUpdate  = "MESSAGE_UPDATE"
	liveMessageDelete  = "MESSAGE_DELETE"
	liveReactionUpdate = "MESSAGE_REACTION_UPDATE"
)

// livePayload is the gateway-shaped envelope the live producer POSTs.
type livePayload struct {
	Event string      `json:"event"`
	Data  liveMessage `json:"data"`
}

type liveMessage struct {
	ID              string          `json:"id"`
	ChannelID       string          `json:"channel_id"`
	ChannelName     string          `json:"channel_name,omitempty"`
	ChannelTopic    string          `json:"channel_topic,omitempty"`
	Author          *liveAuthor     `json:"author,omitempty"`
	Content         string          `json:"content"`
	Timestamp       string          `json:"timestamp,omitempty"`
	EditedTimestamp *string         `json:"edited_timestamp,omitempty"`
	Attachments     json.RawMessage `json:"attachments,omitempty"`
	Embeds          json.RawMessage `json:"embeds,omitempty"`
	Reactions       json.RawMessage `json:"reactions,omitempty"`
}

type liveAuthor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// NormalizeLive maps one live single-event notification into a canonical
// event. Delete notifications carry only the message and channel IDs.
func NormalizeLive(raw []byte) (Event, error) {
	var p livePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, &NormalizationError{Source: SourceLive, Reason: "invalid JSON", Cause: err}
	}

	msgID, err := parseSnowflake(p.Data.ID)
	if err != nil {
		return Event{}, &NormalizationError{Source: SourceLive, Reason: "unparseable message id", Cause: err}
	}
	chanID, err := parseSnowflake(p.Data.ChannelID)
	if err != nil {
		return Event{}, &NormalizationError{Source: SourceLive, Reason: "unparseable channel id", Cause: err}
	}

	ev := Event{
		Source:       SourceLive,
		MessageID:    msgID,
		ChannelID:    chanID,
		Content:      p.Data.Content,
		Attachments:  p.Data.Attachments,
		Embeds:       p.Data.Embeds,
		Reactions:    p.Data.Reactions,
		ChannelName:  p.Data.ChannelName,
		ChannelTopic: p.Data.ChannelTopic,
	}

	if p.Data.Author != nil {
		authorID, err := parseSnowflake(p.Data.Author.ID)
		if err != nil {
			return Event{}, &NormalizationError{Source: SourceLive, Reason: "unparseable author id", Cause: err}
		}
		ev.AuthorID = authorID
		ev.Author = &Author{
			ID:          authorID,
			Username:    p.Data.Author.Username,
			DisplayName: p.Data.Author.DisplayName,
			Bot:         p.Data.Author.Bot,
		}
	}

	if p.Data.Timestamp != "" {
		ts, err := parseTimestamp(p.Data.Timestamp)
		if err != nil {
			return Event{}, &NormalizationError{Source: SourceLive, Reason: "unparseable timestamp", Cause: err}
		}
		ev.CreatedAt = ts
	}
	if p.Data.EditedTimestamp != nil && *p.Data.EditedTimestamp != "" {
		ts, err := parseTimestamp(*p.Data.EditedTimestamp)
		if err != nil {
			return Event{}, &NormalizationError{Source: SourceLive, Reason: "unparseable edited timestamp", Cause: err}
		}
		ev.EditedAt = &ts
	}

	switch p.Event {
	case liveMessageCreate:
		ev.Kind = Created
	case liveMessageUpdate:
		ev.Kind = Updated
		// Updates without an edit timestamp are metadata refreshes (embed
		// unfurls); they must not touch content or edited_at.
		if ev.EditedAt == nil {
			ev.MetadataOnly = true
		}
	case liveMessageDelete:
		ev.Kind = Deleted
	case liveReactionUpdate:
		ev.Kind = Updated
		ev.MetadataOnly = true
		// Only the reactions blob is authoritative in a reaction event.
		ev.Attachments = nil
		ev.Embeds = nil
	default:
		return Event{}, &NormalizationError{Source: SourceLive, Reason: fmt.Sprintf("unknown event type %q", p.Event)}
	}

	return ev, nil
}

// ExportMessage is one record from a DiscordChatExporter JSON partition.
// Exports describe snapshot state only and never carry a delete signal.
type ExportMessage struct {
	ID              string          `json:"id"`
	Type            string          `json:"type,omitempty"`
	Timestamp       string          `json:"timestamp"`
	TimestampEdited *string         `json:"timestampEdited,omitempty"`
	Content         string          `json:"content"`
	Author          *ExportAuthor   `json:"author,omitempty"`
	Attachments     json.RawMessage `json:"attachments,omitempty"`
	Embeds          json.RawMessage `json:"embeds,omitempty"`
	Reactions       json.RawMessage `json:"reactions,omitempty"`
}

// ExportAuthor is the author block of an export record.
type ExportAuthor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
	IsBot    bool   `json:"isBot,omitempty"`
}

// NormalizeExport maps one batch-export record into a canonical event. The
// channel ID comes from the export file header, not the record.
func NormalizeExport(rec ExportMessage, channelID int64) (Event, error) {
	if channelID == 0 {
		return Event{}, &NormalizationError{Source: SourceExport, Reason: "missing channel id"}
	}

	msgID, err := parseSnowflake(rec.ID)
	if err != nil {
		return Event{}, &NormalizationError{Source: SourceExport, Reason: "unparseable message id", Cause: err}
	}
	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return Event{}, &NormalizationError{Source: SourceExport, Reason: "unparseable timestamp", Cause: err}
	}

	ev := Event{
		Kind:        Created,
		Source:      SourceExport,
		MessageID:   msgID,
		ChannelID:   channelID,
		Content:     rec.Content,
		CreatedAt:   ts,
		Attachments: rec.Attachments,
		Embeds:      rec.Embeds,
		Reactions:   rec.Reactions,
	}

	if rec.Author != nil {
		authorID, err := parseSnowflake(rec.Author.ID)
		if err != nil {
			return Event{}, &NormalizationError{Source: SourceExport, Reason: "unparseable author id", Cause: err}
		}
		ev.AuthorID = authorID
		ev.Author = &Author{
			ID:          authorID,
			Username:    rec.Author.Name,
			DisplayName: rec.Author.Nickname,
			Bot:         rec.Author.IsBot,
		}
	}

	if rec.TimestampEdited != nil && *rec.TimestampEdited != "" {
		edited, err := parseTimestamp(*rec.TimestampEdited)
		if err != nil {
			return Event{}, &NormalizationError{Source: SourceExport, Reason: "unparseable edited timestamp", Cause: err}
		}
		ev.Kind = Updated
		ev.EditedAt = &edited
	}

	return ev, nil
}

func parseSnowflake(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("non-positive id %d", id)
	}
	return id, nil
}

func parseTimestamp(s string) (time.Time, error) {
	// Exports use RFC 3339 with offsets; the gateway uses the same shape
	// with a trailing Z.
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
