package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/domain/repositories"
)

// RecognitionCommand asks the client to start or stop its own recognizer
type RecognitionCommand struct {
	Action         string `json:"action"`
	Stream         uint64 `json:"stream"`
	Language       string `json:"language,omitempty"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Error codes reported by browser recognizers
const (
	ErrorCodeAborted           = "aborted"
	ErrorCodeServiceNotAllowed = "service-not-allowed"
)

// RelaySpeechToText turns recognition results produced elsewhere (the
// browser, or lines typed on a console) into recognition streams.
type RelaySpeechToText struct {
	control func(RecognitionCommand)
	logger  *zap.Logger

	mu          sync.Mutex
	current     *relayStream
	nextID      uint64
	unavailable bool
}

// NewRelaySpeechToText creates a relay. control may be nil.
func NewRelaySpeechToText(control func(RecognitionCommand), logger *zap.Logger) *RelaySpeechToText {
	return &RelaySpeechToText{
		control: control,
		logger:  logger,
	}
}

func (r *RelaySpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	r.mu.Lock()
	if r.unavailable {
		r.mu.Unlock()
		return nil, repositories.ErrRecognitionUnavailable
	}

	r.nextID++
	stream := &relayStream{
		id:     r.nextID,
		ctx:    ctx,
		events: make(chan repositories.TranscriptEvent, 32),
		relay:  r,
	}
	previous := r.current
	r.current = stream
	r.mu.Unlock()

	if previous != nil {
		previous.close()
	}

	r.send(RecognitionCommand{
		Action:         ActionStart,
		Stream:         stream.id,
		Language:       config.Language,
		Continuous:     config.Continuous,
		InterimResults: config.InterimResults,
	})
	return stream, nil
}

// Publish delivers a recognized fragment. A zero stream id targets the
// current stream; any other id must match it.
func (r *RelaySpeechToText) Publish(streamID uint64, text string, isFinal bool) bool {
	stream := r.lookup(streamID)
	if stream == nil {
		return false
	}
	return stream.deliver(repositories.TranscriptEvent{Text: text, IsFinal: isFinal})
}

// Fail reports a recognizer error code
func (r *RelaySpeechToText) Fail(streamID uint64, code string) bool {
	stream := r.lookup(streamID)
	if stream == nil {
		return false
	}

	var err error
	switch code {
	case ErrorCodeAborted:
		err = repositories.ErrRecognitionAborted
	case ErrorCodeServiceNotAllowed:
		err = fmt.Errorf("%w: %s", repositories.ErrRecognitionUnavailable, code)
	default:
		err = fmt.Errorf("recognition error: %s", code)
	}
	return stream.deliver(repositories.TranscriptEvent{Err: err})
}

// Finish reports that the recognizer stopped by itself
func (r *RelaySpeechToText) Finish(streamID uint64) {
	stream := r.lookup(streamID)
	if stream == nil {
		return
	}

	r.mu.Lock()
	if r.current == stream {
		r.current = nil
	}
	r.mu.Unlock()
	stream.close()
}

// MarkUnavailable makes every later InitTranscribeStreaming fail
func (r *RelaySpeechToText) MarkUnavailable() {
	r.mu.Lock()
	r.unavailable = true
	current := r.current
	r.current = nil
	r.mu.Unlock()

	if current != nil {
		current.deliver(repositories.TranscriptEvent{Err: repositories.ErrRecognitionUnavailable})
		current.close()
	}
}

func (r *RelaySpeechToText) lookup(streamID uint64) *relayStream {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	if streamID != 0 && streamID != r.current.id {
		r.logger.Debug("Dropping result for stale recognition stream",
			zap.Uint64("stream", streamID),
			zap.Uint64("current", r.current.id))
		return nil
	}
	return r.current
}

func (r *RelaySpeechToText) send(cmd RecognitionCommand) {
	if r.control != nil {
		r.control(cmd)
	}
}

type relayStream struct {
	id     uint64
	ctx    context.Context
	events chan repositories.TranscriptEvent
	relay  *RelaySpeechToText

	mu     sync.Mutex
	closed bool
}

// Stream is a no-op: the remote recognizer owns the audio
func (s *relayStream) Stream(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream already ended")
	}
	return nil
}

func (s *relayStream) Events() <-chan repositories.TranscriptEvent {
	return s.events
}

func (s *relayStream) End() error {
	s.relay.mu.Lock()
	if s.relay.current == s {
		s.relay.current = nil
	}
	s.relay.mu.Unlock()

	if s.close() {
		s.relay.send(RecognitionCommand{Action: ActionStop, Stream: s.id})
	}
	return nil
}

func (s *relayStream) deliver(event repositories.TranscriptEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- event:
		return true
	default:
		s.relay.logger.Warn("Recognition stream is full, dropping result", zap.Uint64("stream", s.id))
		return false
	}
}

func (s *relayStream) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.events)
	return true
}
