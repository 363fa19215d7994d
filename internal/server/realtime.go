package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
)

const (
	RealtimeEventNoteChanged = "note-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "leafnotes-api"
	defaultRealtimeBuffer    = 16
)

// RealtimeMessage announces that a principal's notes changed.
type RealtimeMessage struct {
	UserID    notes.UserID
	EventType string
	Action    string
	NoteIDs   []string
	Timestamp time.Time
}

type realtimeEventPayload struct {
	Action    string    `json:"action"`
	NoteIDs   []string  `json:"noteIds"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

func newRealtimeEventPayload(message RealtimeMessage) realtimeEventPayload {
	return realtimeEventPayload{
		Action:    message.Action,
		NoteIDs:   message.NoteIDs,
		Timestamp: message.Timestamp,
		Source:    realtimeSourceBackend,
	}
}

// RealtimeDispatcher fans note-change messages out to the subscribers of each principal.
// Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[notes.UserID]map[int64]chan RealtimeMessage
	nextID      int64
	bufferSize  int
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[notes.UserID]map[int64]chan RealtimeMessage),
		bufferSize:  defaultRealtimeBuffer,
	}
}

// Subscribe registers a stream for userID until ctx ends or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID notes.UserID) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		closed := make(chan RealtimeMessage)
		close(closed)
		return closed, func() {}
	}

	stream := make(chan RealtimeMessage, d.bufferSize)
	d.mu.Lock()
	d.nextID++
	subscriberID := d.nextID
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]chan RealtimeMessage)
	}
	d.subscribers[userID][subscriberID] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(userID, subscriberID)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Publish delivers message to every current subscriber of message.UserID.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.UserID] {
		select {
		case stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) unregister(userID notes.UserID, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	streams := d.subscribers[userID]
	if streams == nil {
		return
	}
	delete(streams, subscriberID)
	if len(streams) == 0 {
		delete(d.subscribers, userID)
	}
}

// collectNoteIDs returns the sorted distinct ids touched by the results.
func collectNoteIDs(results []notes.MutationResult) []string {
	if len(results) == 0 {
		return nil
	}
	ids := make([]string, 0, len(results))
	for _, result := range results {
		if result.Note.ID == "" {
			continue
		}
		ids = append(ids, result.Note.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
