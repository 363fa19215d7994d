package notes

import (
	"encoding/json"
	"fmt"
	"strings"
)

var (
	requiredNoteFields = []string{
		"id", "title", "content", "category", "createdAt", "updatedAt",
		"isPinned", "isFavorite", "isDeleted", "version", "lastModifiedBy",
	}
	requiredCategoryFields = []string{"id", "name", "color", "icon"}
)

// EncodeNotesSnapshot serializes notes for the local cache.
func EncodeNotesSnapshot(notes []Note) (string, error) {
	if notes == nil {
		notes = []Note{}
	}
	encoded, err := json.Marshal(notes)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// EncodeCategoriesSnapshot serializes categories for the local cache.
func EncodeCategoriesSnapshot(categories []Category) (string, error) {
	if categories == nil {
		categories = []Category{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DecodeNotesSnapshot parses a cached notes snapshot. Any record missing a
// required field, or carrying an empty id or a non-positive version, fails
// the whole snapshot with ErrStorageCorruption.
func DecodeNotesSnapshot(raw string) ([]Note, error) {
	notes, err := decodeRecords[Note](raw, requiredNoteFields)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(notes))
	for index, note := range notes {
		if strings.TrimSpace(note.ID) == "" {
			return nil, fmt.Errorf("%w: note %d has empty id", ErrStorageCorruption, index)
		}
		if _, duplicate := seen[note.ID]; duplicate {
			return nil, fmt.Errorf("%w: note id %q repeated", ErrStorageCorruption, note.ID)
		}
		seen[note.ID] = struct{}{}
		if note.Version < 1 {
			return nil, fmt.Errorf("%w: note %q has version %d", ErrStorageCorruption, note.ID, note.Version)
		}
	}
	return notes, nil
}

// DecodeCategoriesSnapshot parses a cached categories snapshot.
func DecodeCategoriesSnapshot(raw string) ([]Category, error) {
	categories, err := decodeRecords[Category](raw, requiredCategoryFields)
	if err != nil {
		return nil, err
	}
	for index, category := range categories {
		if err := category.Validate(); err != nil {
			return nil, fmt.Errorf("%w: category %d: %v", ErrStorageCorruption, index, err)
		}
	}
	return categories, nil
}

func decodeRecords[T any](raw string, requiredFields []string) ([]T, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorruption, err)
	}
	for index, record := range records {
		if record == nil {
			return nil, fmt.Errorf("%w: record %d is not an object", ErrStorageCorruption, index)
		}
		for _, field := range requiredFields {
			if _, ok := record[field]; !ok {
				return nil, fmt.Errorf("%w: record %d missing %s", ErrStorageCorruption, index, field)
			}
		}
	}
	typed := make([]T, 0, len(records))
	if err := json.Unmarshal([]byte(raw), &typed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorruption, err)
	}
	return typed, nil
}
