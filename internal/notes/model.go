package notes

import (
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = fmt.Errorf("%w: invalid note id", ErrValidation)
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = fmt.Errorf("%w: invalid user id", ErrValidation)
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated principal identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Section names understood by the filter pipeline. Any other value is a category id.
const (
	SectionAll       = "all"
	SectionFavorites = "favorites"
	SectionTrash     = "trash"
)

// SortKey selects the secondary sort field.
type SortKey string

const (
	SortByTitle     SortKey = "title"
	SortByCreatedAt SortKey = "createdAt"
	SortByUpdatedAt SortKey = "updatedAt"
)

// SortOrder selects the direction of the secondary comparison.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// Note is a user-authored record. IsDeleted is the soft-delete marker.
type Note struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Category       string    `json:"category"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	IsPinned       bool      `json:"isPinned"`
	IsFavorite     bool      `json:"isFavorite"`
	IsDeleted      bool      `json:"isDeleted"`
	Version        int64     `json:"version"`
	LastModifiedBy string    `json:"lastModifiedBy"`
}

// Category groups notes. Deleting one clears the category of its notes.
type Category struct {
	ID    string `json:"id" validate:"required,max=190,slug,notsection"`
	Name  string `json:"name" validate:"required,max=50"`
	Color string `json:"color" validate:"required,rgbhex"`
	Icon  string `json:"icon" validate:"required"`
}

// NoteInput carries the caller-supplied fields of a new note.
type NoteInput struct {
	Title    string `json:"title" validate:"required,max=100"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// NotePatch lists the fields of an update; nil fields are left untouched.
type NotePatch struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Category   *string `json:"category"`
	IsPinned   *bool   `json:"isPinned"`
	IsFavorite *bool   `json:"isFavorite"`
}

func (patch NotePatch) isEmpty() bool {
	return patch.Title == nil &&
		patch.Content == nil &&
		patch.Category == nil &&
		patch.IsPinned == nil &&
		patch.IsFavorite == nil
}

// DateRange bounds updatedAt inclusively. A zero bound is open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the instant falls within the range.
func (r DateRange) Contains(instant time.Time) bool {
	if !r.Start.IsZero() && instant.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && instant.After(r.End) {
		return false
	}
	return true
}

// QueryOptions configures a query pass.
type QueryOptions struct {
	SortBy        SortKey   `json:"sortBy"`
	SortOrder     SortOrder `json:"sortOrder"`
	DateRange     DateRange `json:"dateRange"`
	Categories    []string  `json:"categories"`
	OnlyPinned    bool      `json:"onlyPinned"`
	OnlyFavorites bool      `json:"onlyFavorites"`
	SearchTerm    string    `json:"searchTerm"`
	Limit         int       `json:"limit"`
}

// QueryResult holds capped query output. Truncated is set when the cap dropped matches.
type QueryResult struct {
	Results   []Note `json:"results"`
	Truncated bool   `json:"truncated"`
}

// DefaultCategories seeds a workspace that has no categories yet.
func DefaultCategories() []Category {
	return []Category{
		{ID: "work", Name: "Work", Color: "#4f46e5", Icon: "briefcase"},
		{ID: "personal", Name: "Personal", Color: "#16a34a", Icon: "user"},
		{ID: "ideas", Name: "Ideas", Color: "#f59e0b", Icon: "lightbulb"},
	}
}
