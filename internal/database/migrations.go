package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationClampUpdatedAt    = "2024-06-01_clamp_updated_before_created"
	migrationRepairNoteVersion = "2024-06-15_repair_non_positive_versions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClampUpdatedAt, apply: clampUpdatedBeforeCreated},
		{name: migrationRepairNoteVersion, apply: repairNonPositiveVersions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clampUpdatedBeforeCreated restores updatedAt >= createdAt on stored notes.
func clampUpdatedBeforeCreated(db *gorm.DB) error {
	return db.Model(&NoteRecord{}).
		Where("updated_at_ms < created_at_ms").
		Update("updated_at_ms", gorm.Expr("created_at_ms")).Error
}

// repairNonPositiveVersions lifts stored versions to the minimum of 1.
func repairNonPositiveVersions(db *gorm.DB) error {
	return db.Model(&NoteRecord{}).
		Where("version < 1").
		Update("version", 1).Error
}
