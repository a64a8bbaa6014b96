package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Frequency selects which frequency-specific fields of a ScheduleRule apply.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencySpecific Frequency = "specific"
)

// ScheduleRule is a declarative recurrence definition. Brand admins create and
// edit rules; the pipeline never mutates them.
type ScheduleRule struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	BrandID       uint        `gorm:"not null;index" json:"brand_id"`
	SubcategoryID uint        `gorm:"not null;index" json:"subcategory_id"`
	Subcategory   Subcategory `gorm:"foreignKey:SubcategoryID" json:"-"`
	Title         string      `json:"title"`
	Frequency     Frequency   `gorm:"not null" json:"frequency"`

	// weekly
	TimesPerWeek *int                     `json:"times_per_week,omitempty"`
	DaysOfWeek   datatypes.JSONSlice[int] `json:"days_of_week,omitempty"` // 0=Sunday..6=Saturday

	// monthly
	DaysOfMonth datatypes.JSONSlice[int] `json:"days_of_month,omitempty"`
	NthWeek     *int                     `json:"nth_week,omitempty"` // 1..5, -1 for last
	Weekday     *int                     `json:"weekday,omitempty"`

	// specific
	StartDate  *datatypes.Date          `json:"start_date,omitempty"`
	EndDate    *datatypes.Date          `json:"end_date,omitempty"`
	DaysBefore datatypes.JSONSlice[int] `json:"days_before,omitempty"`
	DaysDuring datatypes.JSONSlice[int] `json:"days_during,omitempty"`

	TimesOfDay datatypes.JSONSlice[string] `gorm:"not null" json:"times_of_day"`
	Channels   datatypes.JSONSlice[string] `gorm:"not null" json:"channels"`
	Timezone   string                      `gorm:"not null" json:"timezone"`
	IsActive   bool                        `gorm:"default:true" json:"is_active"`

	// Validity window, "YYYY-MM".
	FirstRunMonth *string `json:"first_run_month,omitempty"`
	LastRunMonth  *string `json:"last_run_month,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ScheduleRule) TableName() string {
	return "schedule_rules"
}
