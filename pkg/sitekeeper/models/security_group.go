package models

import (
	"time"

	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/tenant"
	"gorm.io/gorm"
)

// SecurityGroup represents a named set of permissions that can be assigned to
// users. A group is either valid in every subsite (AccessAllSubsites) or only
// in the subsites it is explicitly linked to through GroupSubsite rows. A group
// with the flag unset and no links is visible in no subsite at all.
type SecurityGroup struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	// No column default on purpose; gorm omits zero values for defaulted
	// columns on insert, which would turn a deliberate false into true.
	AccessAllSubsites bool `json:"access_all_subsites"`

	// Relationships
	Subsites []GroupSubsite `gorm:"foreignKey:GroupID" json:"subsites,omitempty"`
}

// SubsiteIDs returns the group's explicit subsite links. The Subsites relation
// must have been loaded (or assigned) by the caller.
func (g *SecurityGroup) SubsiteIDs() []uint {
	ids := make([]uint, 0, len(g.Subsites))
	for _, link := range g.Subsites {
		ids = append(ids, link.SubsiteID)
	}
	return ids
}

// BeforeCreate forces global access when a group is created outside any subsite
// context. Creating from the global admin UI should never produce a group that
// is invisible everywhere.
func (g *SecurityGroup) BeforeCreate(tx *gorm.DB) error {
	if _, ok := tenant.SubsiteID(tx.Statement.Context); !ok {
		g.AccessAllSubsites = true
	}
	return nil
}

// AfterCreate links a newly created group to the subsite it was created under.
// This runs after persistence because the membership row needs the group's ID.
func (g *SecurityGroup) AfterCreate(tx *gorm.DB) error {
	id, ok := tenant.SubsiteID(tx.Statement.Context)
	if !ok || id == 0 {
		return nil
	}
	link := GroupSubsite{GroupID: g.ID, SubsiteID: id}
	return tx.Session(&gorm.Session{NewDB: true}).Create(&link).Error
}

// BeforeDelete removes the group's subsite links. The group exclusively owns
// its membership set, so links never outlive the group.
func (g *SecurityGroup) BeforeDelete(tx *gorm.DB) error {
	if g.ID == 0 {
		// Batch delete by condition; the hook only handles loaded groups.
		return nil
	}
	return tx.Session(&gorm.Session{NewDB: true}).
		Where("group_id = ?", g.ID).Delete(&GroupSubsite{}).Error
}
