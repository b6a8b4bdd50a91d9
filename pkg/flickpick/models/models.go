package models

import "gorm.io/gorm"

// AllModels returns all models for migration
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&Participant{},
		&GenreNomination{},
		&GenreVote{},
		&GenreFinalized{},
		&MovieCandidate{},
		&MovieVote{},
		&SettingVote{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
