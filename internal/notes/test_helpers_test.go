package notes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

type sequentialIDProvider struct {
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("note-%03d", p.next), nil
}

type steppingClock struct {
	current time.Time
	step    time.Duration
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), step: time.Minute}
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(c.step)
	return c.current
}

type fakeRemote struct {
	notes     map[string]Note
	saveErr   error
	deleteErr error
	loadErr   error
	saves     int
	deletes   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{notes: make(map[string]Note)}
}

func (r *fakeRemote) LoadAll(_ context.Context, principal UserID) ([]Note, error) {
	if principal == "" {
		return nil, ErrRemoteUnauthenticated
	}
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	loaded := make([]Note, 0, len(r.notes))
	for _, note := range r.notes {
		loaded = append(loaded, note)
	}
	return loaded, nil
}

func (r *fakeRemote) Save(_ context.Context, _ UserID, note Note) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.notes[note.ID] = note
	return nil
}

func (r *fakeRemote) Delete(_ context.Context, _ UserID, noteID NoteID) error {
	r.deletes++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.notes[noteID.String()]; !ok {
		return ErrRemoteNotFound
	}
	delete(r.notes, noteID.String())
	return nil
}

type mapCache struct {
	values map[string]string
	setErr error
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.values[key] = value
	return nil
}

func (c *mapCache) Remove(_ context.Context, key string) error {
	delete(c.values, key)
	return nil
}

var errConnectionRefused = errors.New("dial tcp: connection refused")

func mustCoordinator(t *testing.T, remote RemoteStore, cache LocalCache) *Coordinator {
	t.Helper()
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Remote:     remote,
		Cache:      cache,
		IDProvider: &sequentialIDProvider{},
		Clock:      newSteppingClock().Now,
		Principal:  mustUserID(t, "user-1"),
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}
	return coordinator
}

func mustCreate(t *testing.T, coordinator *Coordinator, input NoteInput) Note {
	t.Helper()
	result, err := coordinator.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return result.Note
}

func stringPointer(value string) *string {
	return &value
}

func boolPointer(value bool) *bool {
	return &value
}
