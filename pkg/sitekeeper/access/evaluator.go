// Package access decides whether a user may edit a security group.
package access

import (
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/permissions"
	"gorm.io/gorm"
)

// CanEditGroup reports whether the user administers at least one subsite the
// group is explicitly linked to. The access-all-subsites flag grants
// visibility everywhere but never delegated editability: a delegated editor
// needs an explicit link into one of their subsites, and a group with no links
// is only editable through the system-admin override in the handlers.
//
// Lookup failures and empty sets yield false; this never returns an error.
func CanEditGroup(db *gorm.DB, userID uint, group *models.SecurityGroup) bool {
	administered := AdministeredSubsites(db, userID)
	if len(administered) == 0 {
		return false
	}

	var links []models.GroupSubsite
	if err := db.Where("group_id = ?", group.ID).Find(&links).Error; err != nil {
		return false
	}
	for _, link := range links {
		if administered[link.SubsiteID] {
			return true
		}
	}
	return false
}

// AdministeredSubsites returns the set of subsite IDs the user holds the
// manage-group-subsites grant for.
func AdministeredSubsites(db *gorm.DB, userID uint) map[uint]bool {
	var grants []models.SubsiteGrant
	if err := db.Where("user_id = ? AND permission = ?", userID, permissions.ManageGroupSubsites).
		Find(&grants).Error; err != nil {
		return nil
	}
	administered := make(map[uint]bool, len(grants))
	for _, grant := range grants {
		administered[grant.SubsiteID] = true
	}
	return administered
}
