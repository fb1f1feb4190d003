package server

import (
	"sync"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// DefaultRecentSize is the default bound of the recent-events buffer.
const DefaultRecentSize = 100

// RecentBuffer is the bounded FIFO of the most recently delivered events,
// used to seed newly connected dashboard clients. Owned solely by the
// broadcast server; not allocated when the server is disabled.
type RecentBuffer struct {
	mu     sync.RWMutex
	max    int
	events []*models.Event
}

// NewRecentBuffer creates a buffer holding at most max events.
func NewRecentBuffer(max int) *RecentBuffer {
	if max <= 0 {
		max = DefaultRecentSize
	}
	return &RecentBuffer{max: max}
}

// Append adds a delivered event, evicting the oldest when full.
func (b *RecentBuffer) Append(evt *models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
}

// NewestFirst returns a copy of the buffer ordered newest first.
func (b *RecentBuffer) NewestFirst() []*models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.Event, len(b.events))
	for i, evt := range b.events {
		out[len(b.events)-1-i] = evt
	}
	return out
}

// Len returns the number of buffered events.
func (b *RecentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Usernames returns the distinct usernames present in the buffer, newest
// first.
func (b *RecentBuffer) Usernames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, evt := range b.NewestFirst() {
		if _, ok := seen[evt.User.Username]; ok {
			continue
		}
		seen[evt.User.Username] = struct{}{}
		out = append(out, evt.User.Username)
	}
	return out
}
