// Package migrate contains the one-time data migration from the deprecated
// one-subsite-per-group column to the group_subsites membership table.
package migrate

import (
	"fmt"

	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"gorm.io/gorm"
)

const (
	legacyColumn   = "subsite_id"
	obsoleteColumn = "subsite_id_obsolete"
)

// Legacy migrates the deprecated security_groups.subsite_id column into
// membership rows. It runs once at startup, before request traffic, and is
// idempotent: the first run renames the legacy column, and the rename is the
// already-migrated marker that keeps later runs out of the copy step.
//
// When the column is absent and no group carries the global-access flag or a
// positive-subsite link, this is a first install: every existing group is
// granted access to all subsites rather than silently locked out of every one.
//
// Errors are returned unmodified; callers are expected to abort startup.
func Legacy(db *gorm.DB) error {
	migrator := db.Migrator()

	if migrator.HasColumn(&models.SecurityGroup{}, legacyColumn) {
		if err := copyLegacyLinks(db); err != nil {
			return err
		}
		return migrator.RenameColumn(&models.SecurityGroup{}, legacyColumn, obsoleteColumn)
	}

	firstInstall, err := isFirstInstall(db)
	if err != nil {
		return err
	}
	if firstInstall {
		return db.Model(&models.SecurityGroup{}).
			Where("access_all_subsites = ?", false).
			Update("access_all_subsites", true).Error
	}
	return nil
}

// copyLegacyLinks turns each group's legacy subsite assignment into a
// membership row, and marks groups that had no assignment as global.
func copyLegacyLinks(db *gorm.DB) error {
	var rows []struct {
		ID        uint
		SubsiteID uint
	}
	query := fmt.Sprintf("SELECT id, %s AS subsite_id FROM security_groups WHERE %s > 0", legacyColumn, legacyColumn)
	if err := db.Raw(query).Scan(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		link := models.GroupSubsite{GroupID: row.ID, SubsiteID: row.SubsiteID}
		if err := db.Where(models.GroupSubsite{GroupID: row.ID, SubsiteID: row.SubsiteID}).
			FirstOrCreate(&link).Error; err != nil {
			return err
		}
	}

	update := fmt.Sprintf("UPDATE security_groups SET access_all_subsites = ? WHERE %s = 0", legacyColumn)
	return db.Exec(update, true).Error
}

// isFirstInstall reports whether no group has global access and no link to a
// real subsite exists, i.e. the membership model has never held any state.
func isFirstInstall(db *gorm.DB) (bool, error) {
	var flagged int64
	if err := db.Model(&models.SecurityGroup{}).
		Where("access_all_subsites = ?", true).
		Count(&flagged).Error; err != nil {
		return false, err
	}
	if flagged > 0 {
		return false, nil
	}

	var linked int64
	if err := db.Model(&models.GroupSubsite{}).
		Where("subsite_id > 0").
		Count(&linked).Error; err != nil {
		return false, err
	}
	return linked == 0, nil
}
