package entities

import (
	"errors"
	"sync"
	"time"
)

// Sender identifies who produced a log entry
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// DefaultLogCapacity is the number of entries kept when no capacity is given
const DefaultLogCapacity = 50

// LogEntry represents a single line of the conversation log
type LogEntry struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate validates the log entry
func (e LogEntry) Validate() error {
	switch e.Sender {
	case SenderUser, SenderAssistant, SenderSystem:
	default:
		return errors.New("invalid sender")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// ConversationLog is an append-only ring buffer of log entries.
// Once full, appending evicts the oldest entry.
type ConversationLog struct {
	mu      sync.RWMutex
	entries []LogEntry
	start   int
	size    int
}

// NewConversationLog creates a log holding at most capacity entries
func NewConversationLog(capacity int) *ConversationLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ConversationLog{
		entries: make([]LogEntry, capacity),
	}
}

// Append adds an entry, evicting the oldest one when the log is full.
// It reports whether an entry was evicted.
func (l *ConversationLog) Append(entry LogEntry) (evicted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = entry
		l.size++
		return false
	}

	l.entries[l.start] = entry
	l.start = (l.start + 1) % capacity
	return true
}

// Entries returns the entries oldest first
func (l *ConversationLog) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LogEntry, 0, l.size)
	for i := 0; i < l.size; i++ {
		out = append(out, l.entries[(l.start+i)%len(l.entries)])
	}
	return out
}

// Clear drops every entry
func (l *ConversationLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		l.entries[i] = LogEntry{}
	}
	l.start = 0
	l.size = 0
}
