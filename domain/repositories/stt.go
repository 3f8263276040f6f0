package repositories

import (
	"context"
	"errors"
)

var (
	// ErrRecognitionAborted marks a stream that was stopped on purpose
	ErrRecognitionAborted = errors.New("speech recognition aborted")
	// ErrRecognitionUnavailable means no recognition capability exists for the session
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// InitTranscribeStreaming opens a recognition stream with the given settings
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate     int    `json:"sample_rate"`
	Encoding       string `json:"encoding"`
	Language       string `json:"language"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// TranscriptEvent is one item emitted by a recognition stream.
// Either Err is set, or Text carries an interim or final fragment.
type TranscriptEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Err     error  `json:"-"`
}

// SpeechToTextStreaming is a live recognition stream.
// The Events channel is closed when the stream ends.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	Events() <-chan TranscriptEvent
	End() error
}
