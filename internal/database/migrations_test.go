package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsStoredNotes(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&NoteRecord{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	record := NoteRecord{
		UserID:          "user-1",
		NoteID:          "note-1",
		Title:           "Skewed",
		CreatedAtMillis: 1_700_000_500_000,
		UpdatedAtMillis: 1_700_000_000_000,
		Version:         -1,
	}
	if err := database.Create(&record).Error; err != nil {
		testContext.Fatalf("failed to insert note: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored NoteRecord
	if err := database.Where("user_id = ? AND note_id = ?", record.UserID, record.NoteID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload note: %v", err)
	}
	if stored.UpdatedAtMillis != record.CreatedAtMillis {
		testContext.Fatalf("expected updated_at to be clamped to created_at, got %d", stored.UpdatedAtMillis)
	}
	if stored.Version != 1 {
		testContext.Fatalf("expected version to be repaired to 1, got %d", stored.Version)
	}

	for _, name := range []string{migrationClampUpdatedAt, migrationRepairNoteVersion} {
		var applied migrationRecord
		if err := database.Where("name = ?", name).Take(&applied).Error; err != nil {
			testContext.Fatalf("expected migration record %s to be created: %v", name, err)
		}
		if applied.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set")
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("expected reapplying migrations to be a no-op: %v", err)
	}
}
