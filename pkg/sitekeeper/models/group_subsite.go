package models

import "time"

// GroupSubsite links a security group to a subsite it is valid in. Links are
// meaningful only while the group's AccessAllSubsites flag is false; they are
// kept when the flag is set so that toggling it back restores the previous
// subsite set. Rows are hard-deleted: the tenant filter joins this table with
// raw SQL, which must never see stale soft-deleted links.
type GroupSubsite struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	GroupID   uint      `gorm:"not null;uniqueIndex:idx_group_subsite" json:"group_id"`
	SubsiteID uint      `gorm:"not null;uniqueIndex:idx_group_subsite" json:"subsite_id"`

	// Relationships
	Group   SecurityGroup `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Subsite Subsite       `gorm:"foreignKey:SubsiteID" json:"subsite,omitempty"`
}

// TableName keeps the join table name stable; the query rewriter references it
// in hand-written join SQL.
func (GroupSubsite) TableName() string {
	return "group_subsites"
}
