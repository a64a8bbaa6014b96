package models

import "time"

// PostJobStatus is the state of one channel-specific publish attempt.
type PostJobStatus string

const (
	PostJobStatusPending PostJobStatus = "pending"
	PostJobStatusSuccess PostJobStatus = "success"
	PostJobStatusFailed  PostJobStatus = "failed"
)

// ErrorKind classifies a failed publish attempt.
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "auth_error"
	ErrorKindTransient ErrorKind = "transient_error"
	ErrorKindPermanent ErrorKind = "permanent_error"
	ErrorKindInternal  ErrorKind = "internal_error"
)

// PostJob is one (draft, channel) publish target. A success job is never
// re-attempted.
type PostJob struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	DraftID        uint          `gorm:"not null;uniqueIndex:ux_post_jobs_draft_channel,priority:1" json:"draft_id"`
	Channel        Channel       `gorm:"not null;uniqueIndex:ux_post_jobs_draft_channel,priority:2" json:"channel"`
	Status         PostJobStatus `gorm:"not null;default:'pending';index" json:"status"`
	ErrorKind      *ErrorKind    `json:"error_kind,omitempty"`
	Error          *string       `gorm:"type:text" json:"error,omitempty"`
	ExternalPostID *string       `json:"external_post_id,omitempty"`
	ExternalURL    *string       `json:"external_url,omitempty"`
	Attempts       int           `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt  *time.Time    `json:"last_attempt_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (PostJob) TableName() string {
	return "post_jobs"
}
