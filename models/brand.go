package models

import (
	"time"

	"gorm.io/gorm"
)

// Brand is owned by the external CRUD layer; the pipeline only reads it.
type Brand struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Timezone  string    `gorm:"not null;default:'UTC'" json:"timezone"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Brand) TableName() string {
	return "brands"
}

// Subcategory groups rules and drafts under a content theme.
type Subcategory struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	BrandID     uint           `gorm:"not null;index" json:"brand_id"`
	Brand       Brand          `gorm:"foreignKey:BrandID" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Prompt      string         `gorm:"type:text" json:"prompt"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Subcategory) TableName() string {
	return "subcategories"
}
