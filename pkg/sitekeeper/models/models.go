package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Subsite must be migrated first as other models depend on it
func AllModels() []interface{} {
	return []interface{}{
		&Subsite{},
		&User{},
		&SecurityGroup{},
		&GroupSubsite{},
		&SubsiteGrant{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
