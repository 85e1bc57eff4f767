// Package event defines the canonical, producer-agnostic representation of a
// message observation and the normalizers that map raw producer payloads into
// it. Producer-specific shapes never cross this boundary.
package event

import (
	"encoding/json"
	"time"
)

// Kind is the closed set of canonical event kinds.
type Kind int

const (
	// Created is a message observed for the first time as far as the
	// producer can tell. The upsert engine decides whether it is actually
	// new or a seen-again duplicate.
	Created Kind = iota
	// Updated carries an in-place edit (or, with MetadataOnly, a blob-only
	// refresh such as a reaction change).
	Updated
	// Deleted signals explicit removal of the message.
	Deleted
	// Unchanged marks a seen-again observation. Normalizers never emit it;
	// the upsert engine treats it exactly like Created.
	Unchanged
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Source identifies which producer observed the event.
type Source string

const (
	SourceLive   Source = "live"
	SourceExport Source = "export"
)

// Author is optional author metadata attached to an observation, used to
// keep the users table current (last-write-wins).
type Author struct {
	ID          int64
	Username    string
	DisplayName string
	Bot         bool
}

// Event is a single canonical message observation.
type Event struct {
	Kind   Kind
	Source Source

	MessageID int64
	ChannelID int64
	AuthorID  int64

	Content   string
	CreatedAt time.Time
	EditedAt  *time.Time

	// Opaque structured blobs, replaced wholesale on update. nil means the
	// payload did not carry the blob.
	Attachments json.RawMessage
	Embeds      json.RawMessage
	Reactions   json.RawMessage

	// MetadataOnly marks an Updated event that must not touch content or
	// edited_at (reaction changes, embed unfurls).
	MetadataOnly bool

	Author       *Author
	ChannelName  string
	ChannelTopic string
}
