// Package cache keeps a rolling window of recent messages per watched
// channel so summary commands can avoid a history fetch for small counts.
package cache

import (
	"sync"
	"time"
)

// MaxEntries caps each channel's buffer; the oldest entry is evicted first.
const MaxEntries = 1000

// Message is one cached (author, content, timestamp) tuple. Immutable
// once appended.
type Message struct {
	Author    string
	Content   string
	Timestamp time.Time
}

// Store holds bounded FIFO buffers keyed by channel ID.
type Store struct {
	mu      sync.Mutex
	buffers map[string][]Message
	max     int
}

func NewStore() *Store {
	return &Store{
		buffers: make(map[string][]Message),
		max:     MaxEntries,
	}
}

// NewStoreWithCap creates a Store with a custom per-key cap (for testing).
func NewStoreWithCap(max int) *Store {
	s := NewStore()
	s.max = max
	return s
}

// Append records a message at the end of the channel's buffer, evicting
// the oldest entry when the cap is exceeded.
func (s *Store) Append(channelID, author, content string, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.buffers[channelID], Message{Author: author, Content: content, Timestamp: timestamp})
	if len(buf) > s.max {
		buf = buf[len(buf)-s.max:]
	}
	s.buffers[channelID] = buf
}

// Snapshot returns a copy of the channel's buffer in arrival order.
func (s *Store) Snapshot(channelID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[channelID]
	out := make([]Message, len(buf))
	copy(out, buf)
	return out
}

// Len reports the number of cached messages for the channel.
func (s *Store) Len(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[channelID])
}
