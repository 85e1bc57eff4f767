package models

import "time"

// JobStatus is the lifecycle state of a backfill job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// BackfillJob tracks one historical-import attempt over one channel and time
// window. Failed jobs are terminal; a retry is a fresh job that resumes from
// the channel's export cursor.
type BackfillJob struct {
	ID               string     `json:"id"` // ULID
	ChannelID        int64      `json:"channel_id"`
	WindowStart      time.Time  `json:"window_start"`
	WindowEnd        *time.Time `json:"window_end,omitempty"` // nil = open-ended
	Status           JobStatus  `json:"status"`
	MessagesImported int        `json:"messages_imported"`
	ErrorDetail      *string    `json:"error_detail,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
