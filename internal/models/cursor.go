package models

import "time"

// ProducerKind identifies which producer a cursor belongs to.
type ProducerKind string

const (
	ProducerLive   ProducerKind = "live"
	ProducerExport ProducerKind = "export"
)

// Cursor is the last successfully processed message position for one
// (channel, producer) pair. Positions are snowflake message IDs and only
// ever move forward.
type Cursor struct {
	ChannelID int64        `json:"channel_id"`
	Producer  ProducerKind `json:"producer"`
	Position  int64        `json:"position"`
	UpdatedAt time.Time    `json:"updated_at"`
}
