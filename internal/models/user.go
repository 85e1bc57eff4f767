package models

import "time"

// User represents a Discord author seen in at least one message. Metadata is
// last-write-wins on each sighting.
type User struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Bot         bool      `json:"bot"`
	UpdatedAt   time.Time `json:"updated_at"`
}
