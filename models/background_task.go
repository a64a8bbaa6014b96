package models

import (
	"time"

	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// BackgroundTask tracks one queued unit of work from enqueue to completion.
type BackgroundTask struct {
	ID         string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind       string         `gorm:"not null;index" json:"kind"`
	Queue      string         `gorm:"not null" json:"queue"`
	Payload    datatypes.JSON `json:"payload"`
	Status     TaskStatus     `gorm:"not null;default:'queued';index" json:"status"`
	Error      *string        `gorm:"type:text" json:"error,omitempty"`
	Result     datatypes.JSON `json:"result,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

func (BackgroundTask) TableName() string {
	return "background_tasks"
}
