package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"estatehub/server/internal/models"
)

type migration struct {
	Version string
	Name    string
	Up      func(tx *gorm.DB) error
}

// migrations are applied in order and recorded in migration_records.
var migrations = []migration{
	{
		Version: "0001",
		Name:    "create accounts and organisations",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.User{},
				&models.Agency{},
				&models.Member{},
				&models.Developer{},
				&models.Project{},
			)
		},
	},
	{
		Version: "0002",
		Name:    "create listings",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Property{},
				&models.PropertyView{},
				&models.Favorite{},
			)
		},
	},
	{
		Version: "0003",
		Name:    "create crm tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Lead{},
				&models.Deal{},
				&models.Commission{},
			)
		},
	},
	{
		Version: "0004",
		Name:    "create messaging tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Conversation{},
				&models.ConversationParticipant{},
				&models.Message{},
			)
		},
	},
	{
		Version: "0005",
		Name:    "add analytics indexes",
		Up: func(tx *gorm.DB) error {
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_leads_agency_created ON leads (agency_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_leads_developer_created ON leads (developer_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_deals_agency_stage_position ON deals (agency_id, stage, position)`,
				`CREATE INDEX IF NOT EXISTS idx_property_views_property_created ON property_views (property_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_properties_coordinates ON properties (latitude, longitude)`,
			}
			for _, stmt := range statements {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// RunMigrations applies every migration that has no record yet.
func (d *Database) RunMigrations(ctx context.Context) error {
	db := d.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migration_records table: %w", err)
	}

	applied, err := d.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&models.MigrationRecord{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: d.now(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", m.Version, m.Name, err)
		}

		d.logger.WithFields(logrus.Fields{
			"version": m.Version,
			"name":    m.Name,
		}).Info("Applied migration")
	}

	return nil
}

// AppliedMigrations lists the recorded migrations, oldest first.
func (d *Database) AppliedMigrations(ctx context.Context) ([]models.MigrationRecord, error) {
	var records []models.MigrationRecord
	db := d.db.WithContext(ctx)
	if !db.Migrator().HasTable(&models.MigrationRecord{}) {
		return records, nil
	}
	if err := db.Order("version").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	return records, nil
}

// PendingMigrations returns the versions not yet applied.
func (d *Database) PendingMigrations(ctx context.Context) ([]string, error) {
	applied, err := d.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m.Version)
		}
	}
	return pending, nil
}

func (d *Database) appliedVersions(ctx context.Context) (map[string]bool, error) {
	db := d.db.WithContext(ctx)
	if !db.Migrator().HasTable(&models.MigrationRecord{}) {
		return map[string]bool{}, nil
	}
	var records []models.MigrationRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	versions := make(map[string]bool, len(records))
	for _, r := range records {
		versions[r.Version] = true
	}
	return versions, nil
}
