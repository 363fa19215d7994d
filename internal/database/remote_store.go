package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opRemoteLoadAll = "database.remote.load_all"
	opRemoteSave    = "database.remote.save"
	opRemoteDelete  = "database.remote.delete"

	fieldUserID          = "user_id"
	fieldNoteID          = "note_id"
	queryUserID          = fieldUserID + " = ?"
	queryUserNote        = fieldUserID + " = ? AND " + fieldNoteID + " = ?"
	orderUpdatedDesc     = "updated_at_ms DESC"
	reasonQueryFailed    = "query_failed"
	reasonUpsertFailed   = "upsert_failed"
	reasonDeleteFailed   = "delete_failed"
	sqliteFullMessage    = "database or disk is full"
	sqliteFullResultCode = "SQLITE_FULL"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// RemoteStoreConfig describes the dependencies of a RemoteStore.
type RemoteStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// RemoteStore persists notes per principal in the notes table.
type RemoteStore struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewRemoteStore constructs a RemoteStore.
func NewRemoteStore(cfg RemoteStoreConfig) (*RemoteStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &RemoteStore{db: cfg.Database, clock: clock, logger: logger}, nil
}

// LoadAll returns every stored note of the principal, most recently updated first.
func (s *RemoteStore) LoadAll(ctx context.Context, principal notes.UserID) ([]notes.Note, error) {
	if principal == "" {
		return nil, notes.ErrRemoteUnauthenticated
	}

	var records []NoteRecord
	if err := s.db.WithContext(ctx).
		Where(queryUserID, principal.String()).
		Order(orderUpdatedDesc).
		Find(&records).Error; err != nil {
		s.logError(opRemoteLoadAll, reasonQueryFailed, err, zap.String(fieldUserID, principal.String()))
		return nil, storeFailure(err)
	}

	loaded := make([]notes.Note, 0, len(records))
	for _, record := range records {
		loaded = append(loaded, record.toNote())
	}
	return loaded, nil
}

// Save inserts or replaces the note. Last writer wins.
func (s *RemoteStore) Save(ctx context.Context, principal notes.UserID, note notes.Note) error {
	if principal == "" {
		return notes.ErrRemoteUnauthenticated
	}

	record := newNoteRecord(principal, note, s.clock().UTC())
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: fieldUserID}, {Name: fieldNoteID}},
			UpdateAll: true,
		}).
		Create(&record).Error
	if err != nil {
		s.logError(opRemoteSave, reasonUpsertFailed, err,
			zap.String(fieldUserID, principal.String()),
			zap.String(fieldNoteID, note.ID))
		return storeFailure(err)
	}
	return nil
}

// Delete removes the note. Returns notes.ErrRemoteNotFound when nothing was stored.
func (s *RemoteStore) Delete(ctx context.Context, principal notes.UserID, noteID notes.NoteID) error {
	if principal == "" {
		return notes.ErrRemoteUnauthenticated
	}

	result := s.db.WithContext(ctx).
		Where(queryUserNote, principal.String(), noteID.String()).
		Delete(&NoteRecord{})
	if result.Error != nil {
		s.logError(opRemoteDelete, reasonDeleteFailed, result.Error,
			zap.String(fieldUserID, principal.String()),
			zap.String(fieldNoteID, noteID.String()))
		return storeFailure(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", notes.ErrRemoteNotFound, noteID)
	}
	return nil
}

// storeFailure maps a database error onto the remote collaborator errors.
func storeFailure(err error) error {
	message := err.Error()
	if strings.Contains(message, sqliteFullMessage) || strings.Contains(message, sqliteFullResultCode) {
		return fmt.Errorf("%w: %v", notes.ErrRemoteQuota, err)
	}
	return fmt.Errorf("%w: %v", notes.ErrRemoteUnavailable, err)
}

func (s *RemoteStore) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	logger.Error("remote store error", append(attrs, fields...)...)
}
