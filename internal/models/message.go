package models

import (
	"encoding/json"
	"time"
)

// Message represents one archived Discord message.
//
// MessageID is the producer-assigned snowflake and is globally unique.
// CreatedAt never changes after the row first appears, Deleted never
// transitions back to false, and EditedAt never decreases once set.
type Message struct {
	MessageID int64  `json:"message_id"`
	ChannelID int64  `json:"channel_id"`
	AuthorID  int64  `json:"author_id"` // 0 when unknown (tombstone placeholder)
	Content   string `json:"content"`

	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Opaque payload blobs, replaced wholesale on update.
	Attachments json.RawMessage `json:"attachments,omitempty"`
	Embeds      json.RawMessage `json:"embeds,omitempty"`
	Reactions   json.RawMessage `json:"reactions,omitempty"`

	ImportedAt time.Time `json:"imported_at"`
}
