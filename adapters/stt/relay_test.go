package stt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/kmfl/server/domain/repositories"
)

var _ repositories.SpeechToText = &RelaySpeechToText{}

type commandRecorder struct {
	mu       sync.Mutex
	commands []RecognitionCommand
}

func (r *commandRecorder) record(cmd RecognitionCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *commandRecorder) all() []RecognitionCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecognitionCommand(nil), r.commands...)
}

func TestRelayStreamLifecycle(t *testing.T) {
	recorder := &commandRecorder{}
	relay := NewRelaySpeechToText(recorder.record, zaptest.NewLogger(t))

	stream, err := relay.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{
		Language:       "hi-IN",
		Continuous:     true,
		InterimResults: true,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	commands := recorder.all()
	if len(commands) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(commands))
	}
	start := commands[0]
	if start.Action != ActionStart || start.Language != "hi-IN" || !start.Continuous || !start.InterimResults {
		t.Errorf("Unexpected start command: %+v", start)
	}

	if !relay.Publish(start.Stream, "nama", false) {
		t.Fatal("Expected interim result to be delivered")
	}
	if !relay.Publish(0, "namaste", true) {
		t.Fatal("Expected final result to be delivered to the current stream")
	}

	first := <-stream.Events()
	second := <-stream.Events()
	if first.Text != "nama" || first.IsFinal {
		t.Errorf("Unexpected first event: %+v", first)
	}
	if second.Text != "namaste" || !second.IsFinal {
		t.Errorf("Unexpected second event: %+v", second)
	}

	if err := stream.End(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := <-stream.Events(); ok {
		t.Error("Expected events channel to be closed")
	}

	commands = recorder.all()
	if len(commands) != 2 || commands[1].Action != ActionStop || commands[1].Stream != start.Stream {
		t.Errorf("Expected a stop command for stream %d, got %+v", start.Stream, commands)
	}
	if relay.Publish(0, "late", true) {
		t.Error("Expected no delivery after the stream ended")
	}
	if err := stream.End(); err != nil {
		t.Errorf("Expected ending twice to be harmless, got %v", err)
	}
}

func TestRelayDropsStaleResults(t *testing.T) {
	relay := NewRelaySpeechToText(nil, zaptest.NewLogger(t))
	ctx := context.Background()

	old, _ := relay.InitTranscribeStreaming(ctx, repositories.AudioConfig{Language: "en-US"})
	current, _ := relay.InitTranscribeStreaming(ctx, repositories.AudioConfig{Language: "hi-IN"})

	if _, ok := <-old.Events(); ok {
		t.Error("Expected the replaced stream to be closed")
	}
	if relay.Publish(1, "kmfl", true) {
		t.Error("Expected result for stream 1 to be dropped")
	}
	if !relay.Publish(2, "hello", true) {
		t.Error("Expected result for stream 2 to be delivered")
	}

	event := <-current.Events()
	if event.Text != "hello" {
		t.Errorf("Expected hello, got %q", event.Text)
	}
}

func TestRelayFailAndFinish(t *testing.T) {
	relay := NewRelaySpeechToText(nil, zaptest.NewLogger(t))
	stream, _ := relay.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{})

	tests := []struct {
		code   string
		target error
	}{
		{ErrorCodeAborted, repositories.ErrRecognitionAborted},
		{ErrorCodeServiceNotAllowed, repositories.ErrRecognitionUnavailable},
	}
	for _, tt := range tests {
		relay.Fail(0, tt.code)
		event := <-stream.Events()
		if !errors.Is(event.Err, tt.target) {
			t.Errorf("Expected %v for %s, got %v", tt.target, tt.code, event.Err)
		}
	}

	relay.Fail(0, "network")
	event := <-stream.Events()
	if event.Err == nil || errors.Is(event.Err, repositories.ErrRecognitionAborted) {
		t.Errorf("Expected a plain error, got %v", event.Err)
	}

	relay.Finish(0)
	if _, ok := <-stream.Events(); ok {
		t.Error("Expected events channel to be closed after finish")
	}
}

func TestRelayMarkUnavailable(t *testing.T) {
	relay := NewRelaySpeechToText(nil, zaptest.NewLogger(t))
	stream, _ := relay.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{})

	relay.MarkUnavailable()

	event, ok := <-stream.Events()
	if !ok || !errors.Is(event.Err, repositories.ErrRecognitionUnavailable) {
		t.Errorf("Expected unavailable error, got %+v", event)
	}

	_, err := relay.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{})
	if !errors.Is(err, repositories.ErrRecognitionUnavailable) {
		t.Errorf("Expected ErrRecognitionUnavailable, got %v", err)
	}
}
