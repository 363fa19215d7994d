// Package cache provides an in-process local cache for note snapshots.
package cache

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps snapshot strings in process memory without expiration.
type Memory struct {
	store *gocache.Cache
}

// NewMemory constructs an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{store: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the stored value and whether the key exists.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	value, found := m.store.Get(key)
	if !found {
		return "", false, nil
	}
	text, ok := value.(string)
	if !ok {
		return "", false, nil
	}
	return text, true, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.store.Set(key, value, gocache.NoExpiration)
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}
