package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const columnCacheKey = "cache_key"

// CacheStoreConfig describes the dependencies of a CacheStore.
type CacheStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// CacheStore is a durable key/value local cache in the cache_entries table.
type CacheStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewCacheStore constructs a CacheStore.
func NewCacheStore(cfg CacheStoreConfig) (*CacheStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CacheStore{db: cfg.Database, clock: clock}, nil
}

// Get returns the stored value and whether the key exists.
func (s *CacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry CacheEntry
	err := s.db.WithContext(ctx).Where(columnCacheKey+" = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *CacheStore) Set(ctx context.Context, key, value string) error {
	entry := CacheEntry{Key: key, Value: value, UpdatedAtSeconds: s.clock().UTC().Unix()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: columnCacheKey}},
			UpdateAll: true,
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *CacheStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(columnCacheKey+" = ?", key).Delete(&CacheEntry{}).Error; err != nil {
		return fmt.Errorf("cache remove %s: %w", key, err)
	}
	return nil
}
