package models

import "time"

// SubsiteGrant gives a user a named capability within one subsite. The access
// evaluator looks up grants by permission name to decide which subsites a user
// administers. Hard-deleted for the same reason as GroupSubsite.
type SubsiteGrant struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_user_subsite_perm" json:"user_id"`
	SubsiteID  uint      `gorm:"not null;uniqueIndex:idx_user_subsite_perm" json:"subsite_id"`
	Permission string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_subsite_perm" json:"permission"`

	// Relationships
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Subsite Subsite `gorm:"foreignKey:SubsiteID" json:"subsite,omitempty"`
}
