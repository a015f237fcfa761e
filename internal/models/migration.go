package models

import "time"

// MigrationRecord tracks an applied schema migration
type MigrationRecord struct {
	Version   string    `gorm:"primaryKey;type:varchar(32)" json:"version"`
	Name      string    `gorm:"not null" json:"name"`
	AppliedAt time.Time `gorm:"not null" json:"applied_at"`
}
