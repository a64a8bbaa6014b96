package models

import "time"

// Publish is the append-only audit record of a successful PostJob.
type Publish struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PostJobID      uint      `gorm:"not null;index" json:"post_job_id"`
	DraftID        uint      `gorm:"not null;index" json:"draft_id"`
	Channel        Channel   `gorm:"not null" json:"channel"`
	ExternalPostID string    `json:"external_post_id"`
	ExternalURL    string    `json:"external_url"`
	PublishedAt    time.Time `gorm:"not null" json:"published_at"`
}

func (Publish) TableName() string {
	return "publishes"
}
