package models

import (
	"time"

	"gorm.io/gorm"
)

// Subsite represents a tenant in the multi-site platform: an isolated partition
// of content and configuration within one shared installation. Name is the
// display name, Slug the URL-safe identifier unique across the installation.
// Subsite ID 0 is never a row in this table; it is the sentinel for the
// global administrative context.
type Subsite struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Slug      string         `gorm:"uniqueIndex;not null" json:"slug"`

	// Relationships
	Groups []GroupSubsite `gorm:"foreignKey:SubsiteID" json:"groups,omitempty"`
	Grants []SubsiteGrant `gorm:"foreignKey:SubsiteID" json:"grants,omitempty"`
}
