package models

import (
	"time"

	"gorm.io/datatypes"
)

// DraftStatus is the aggregate publish state of a draft.
type DraftStatus string

const (
	DraftStatusDraft              DraftStatus = "draft"
	DraftStatusScheduled          DraftStatus = "scheduled"
	DraftStatusPartiallyPublished DraftStatus = "partially_published"
	DraftStatusPublished          DraftStatus = "published"
	DraftStatusFailed             DraftStatus = "failed"
)

// ScheduleSourceFramework marks drafts created by the materializer.
const ScheduleSourceFramework = "framework"

// Draft is one materialized occurrence. At most one active draft exists per
// (subcategory, scheduled_for, occurrence_key).
type Draft struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	BrandID        uint        `gorm:"not null;index" json:"brand_id"`
	SubcategoryID  uint        `gorm:"not null;uniqueIndex:ux_drafts_natural_key,priority:1,where:archived_at IS NULL" json:"subcategory_id"`
	ScheduleRuleID *uint       `gorm:"index" json:"schedule_rule_id,omitempty"`
	ScheduledFor   time.Time   `gorm:"not null;index;uniqueIndex:ux_drafts_natural_key,priority:2,where:archived_at IS NULL" json:"scheduled_for"`
	OccurrenceKey  string      `gorm:"not null;default:'';uniqueIndex:ux_drafts_natural_key,priority:3,where:archived_at IS NULL" json:"occurrence_key"`
	Approved       bool        `gorm:"default:false;index" json:"approved"`
	Status         DraftStatus `gorm:"not null;default:'draft';index" json:"status"`
	ScheduleSource string      `gorm:"not null;default:'framework'" json:"schedule_source"`

	Caption   string                      `gorm:"type:text" json:"caption"`
	Hashtags  datatypes.JSONSlice[string] `json:"hashtags"`
	MediaURLs datatypes.JSONSlice[string] `json:"media_urls"`

	PostJobs []PostJob `gorm:"foreignKey:DraftID" json:"post_jobs,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	ArchivedAt  *time.Time `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Draft) TableName() string {
	return "drafts"
}
