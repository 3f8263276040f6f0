package entities

import (
	"fmt"
	"testing"
	"time"
)

func TestConversationLogAppend(t *testing.T) {
	log := NewConversationLog(3)

	log.Append(LogEntry{Sender: SenderSystem, Text: "ready", Timestamp: time.Now()})
	log.Append(LogEntry{Sender: SenderUser, Text: "namaste", Timestamp: time.Now()})

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "ready" {
		t.Errorf("Expected first entry 'ready', got '%s'", entries[0].Text)
	}
	if entries[1].Sender != SenderUser {
		t.Errorf("Expected user sender, got %s", entries[1].Sender)
	}
}

func TestConversationLogEvictsOldestFirst(t *testing.T) {
	log := NewConversationLog(DefaultLogCapacity)

	for i := 0; i < DefaultLogCapacity+7; i++ {
		evicted := log.Append(LogEntry{Sender: SenderSystem, Text: fmt.Sprintf("entry-%d", i), Timestamp: time.Now()})
		if evicted != (i >= DefaultLogCapacity) {
			t.Errorf("Append %d: expected evicted=%v, got %v", i, i >= DefaultLogCapacity, evicted)
		}
		if n := len(log.Entries()); n > DefaultLogCapacity {
			t.Fatalf("Log grew past capacity: %d", n)
		}
	}

	entries := log.Entries()
	if len(entries) != DefaultLogCapacity {
		t.Fatalf("Expected %d entries, got %d", DefaultLogCapacity, len(entries))
	}
	if entries[0].Text != "entry-7" {
		t.Errorf("Expected oldest surviving entry 'entry-7', got '%s'", entries[0].Text)
	}
	if entries[len(entries)-1].Text != fmt.Sprintf("entry-%d", DefaultLogCapacity+6) {
		t.Errorf("Unexpected newest entry '%s'", entries[len(entries)-1].Text)
	}
}

func TestConversationLogClear(t *testing.T) {
	log := NewConversationLog(2)
	log.Append(LogEntry{Sender: SenderUser, Text: "a", Timestamp: time.Now()})
	log.Append(LogEntry{Sender: SenderUser, Text: "b", Timestamp: time.Now()})
	log.Append(LogEntry{Sender: SenderUser, Text: "c", Timestamp: time.Now()})

	log.Clear()
	if n := len(log.Entries()); n != 0 {
		t.Errorf("Expected empty log after clear, got %d entries", n)
	}

	log.Append(LogEntry{Sender: SenderAssistant, Text: "d", Timestamp: time.Now()})
	entries := log.Entries()
	if len(entries) != 1 || entries[0].Text != "d" {
		t.Errorf("Expected single entry 'd' after clear, got %+v", entries)
	}
}

func TestNewConversationLogDefaultCapacity(t *testing.T) {
	log := NewConversationLog(0)
	if len(log.entries) != DefaultLogCapacity {
		t.Errorf("Expected capacity %d, got %d", DefaultLogCapacity, len(log.entries))
	}
}

func TestLogEntryValidation(t *testing.T) {
	entry := LogEntry{Sender: SenderAssistant, Text: "hi", Timestamp: time.Now()}
	if err := entry.Validate(); err != nil {
		t.Errorf("Valid entry should not have validation errors, got: %v", err)
	}

	entry.Sender = Sender("robot")
	if err := entry.Validate(); err == nil {
		t.Error("Entry with unknown sender should have validation error")
	}

	entry.Sender = SenderUser
	entry.Timestamp = time.Time{}
	if err := entry.Validate(); err == nil {
		t.Error("Entry without timestamp should have validation error")
	}
}
