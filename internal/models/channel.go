package models

import "time"

// Channel represents a monitored Discord channel. Rows are created on first
// sighting by either producer; name and topic are last-write-wins.
type Channel struct {
	ChannelID int64     `json:"channel_id"`
	SubnetID  *int64    `json:"subnet_id,omitempty"`
	Name      string    `json:"name"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelSummary is a channel with its live message counters, used by the
// channel listing endpoint.
type ChannelSummary struct {
	ChannelID     int64      `json:"channel_id"`
	Name          string     `json:"name"`
	Subnet        string     `json:"subnet,omitempty"`
	MessageCount  int64      `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// Subnet is a topic grouping that channels may be classified under.
type Subnet struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthorCount is one entry in a channel's top-authors ranking.
type AuthorCount struct {
	AuthorID int64  `json:"author_id"`
	Username string `json:"username"`
	Count    int64  `json:"count"`
}

// ChannelStats aggregates per-channel statistics for the stats endpoint.
type ChannelStats struct {
	ChannelID    int64         `json:"channel_id"`
	MessageCount int64         `json:"message_count"`
	TopAuthors   []AuthorCount `json:"top_authors"`
	FirstMessage *time.Time    `json:"first_message,omitempty"`
	LastMessage  *time.Time    `json:"last_message,omitempty"`
}
