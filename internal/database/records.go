package database

import (
	"time"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
)

// NoteRecord is the persisted form of a note, keyed by principal and note id.
// Timestamps are stored as Unix milliseconds.
type NoteRecord struct {
	UserID          string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_notes_user_updated,priority:1"`
	NoteID          string `gorm:"column:note_id;primaryKey;size:190;not null"`
	Title           string `gorm:"column:title;size:400;not null"`
	Content         string `gorm:"column:content;type:text;not null"`
	Category        string `gorm:"column:category;size:190;not null;default:''"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null;index:idx_notes_user_updated,priority:2"`
	IsPinned        bool   `gorm:"column:is_pinned;not null;default:false"`
	IsFavorite      bool   `gorm:"column:is_favorite;not null;default:false"`
	IsDeleted       bool   `gorm:"column:is_deleted;not null;default:false"`
	Version         int64  `gorm:"column:version;not null;default:1"`
	LastModifiedBy  string `gorm:"column:last_modified_by;size:190;not null;default:''"`
	StoredAtSeconds int64  `gorm:"column:stored_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (NoteRecord) TableName() string {
	return "notes"
}

// CacheEntry is one key of the durable local cache.
type CacheEntry struct {
	Key              string `gorm:"column:cache_key;primaryKey;size:190;not null"`
	Value            string `gorm:"column:cache_value;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

func newNoteRecord(principal notes.UserID, note notes.Note, storedAt time.Time) NoteRecord {
	return NoteRecord{
		UserID:          principal.String(),
		NoteID:          note.ID,
		Title:           note.Title,
		Content:         note.Content,
		Category:        note.Category,
		CreatedAtMillis: note.CreatedAt.UnixMilli(),
		UpdatedAtMillis: note.UpdatedAt.UnixMilli(),
		IsPinned:        note.IsPinned,
		IsFavorite:      note.IsFavorite,
		IsDeleted:       note.IsDeleted,
		Version:         note.Version,
		LastModifiedBy:  note.LastModifiedBy,
		StoredAtSeconds: storedAt.Unix(),
	}
}

func (record NoteRecord) toNote() notes.Note {
	return notes.Note{
		ID:             record.NoteID,
		Title:          record.Title,
		Content:        record.Content,
		Category:       record.Category,
		CreatedAt:      time.UnixMilli(record.CreatedAtMillis).UTC(),
		UpdatedAt:      time.UnixMilli(record.UpdatedAtMillis).UTC(),
		IsPinned:       record.IsPinned,
		IsFavorite:     record.IsFavorite,
		IsDeleted:      record.IsDeleted,
		Version:        record.Version,
		LastModifiedBy: record.LastModifiedBy,
	}
}
