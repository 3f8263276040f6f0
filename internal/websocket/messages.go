package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/kmfl/server/adapters/stt"
	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by the browser
const (
	MessageTypeMicrophone       MessageType = "microphone"
	MessageTypeCapabilities     MessageType = "capabilities"
	MessageTypeTranscript       MessageType = "transcript"
	MessageTypeRecognitionError MessageType = "recognition_error"
	MessageTypeRecognitionEnd   MessageType = "recognition_end"
	MessageTypeAudioLevel       MessageType = "audio_level"
	MessageTypeSettings         MessageType = "settings"
	MessageTypeClearLog         MessageType = "clear_log"
	MessageTypeVisibility       MessageType = "visibility"
	MessageTypePlaybackEnd      MessageType = "playback_end"
	MessageTypePlaybackError    MessageType = "playback_error"
	MessageTypePing             MessageType = "ping"
)

// Messages sent by the server
const (
	MessageTypeSession       MessageType = "session"
	MessageTypeStatus        MessageType = "status"
	MessageTypeLog           MessageType = "log"
	MessageTypeLogCleared    MessageType = "log_cleared"
	MessageTypeSound         MessageType = "sound"
	MessageTypeRecognition   MessageType = "recognition"
	MessageTypeSpeak         MessageType = "speak"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypeSpeakCancel   MessageType = "speak_cancel"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// Error codes carried by error messages
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeInvalidSettings = "invalid_settings"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// MicrophoneMessage reports the outcome of the microphone permission prompt
type MicrophoneMessage struct {
	BaseMessage
	Granted bool `json:"granted"`
}

// CapabilitiesMessage reports what the browser can do by itself
type CapabilitiesMessage struct {
	BaseMessage
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}

// TranscriptMessage carries a fragment from the browser recognizer
type TranscriptMessage struct {
	BaseMessage
	Stream  uint64 `json:"stream"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// RecognitionErrorMessage carries a browser recognizer error code
type RecognitionErrorMessage struct {
	BaseMessage
	Stream uint64 `json:"stream"`
	Error  string `json:"error"`
}

// RecognitionEndMessage reports that the browser recognizer stopped
type RecognitionEndMessage struct {
	BaseMessage
	Stream uint64 `json:"stream"`
}

// AudioLevelMessage carries a microphone level measured by the browser
type AudioLevelMessage struct {
	BaseMessage
	Level float64 `json:"level"`
}

// SettingsUpdate is a partial settings change, absent fields are kept
type SettingsUpdate struct {
	SilenceTimeout *float64 `json:"silence_timeout,omitempty"`
	Volume         *float64 `json:"volume,omitempty"`
	SoundEnabled   *bool    `json:"sound_enabled,omitempty"`
}

// Apply returns current with the update applied
func (u SettingsUpdate) Apply(current entities.Settings) entities.Settings {
	if u.SilenceTimeout != nil {
		current.SilenceTimeout = time.Duration(*u.SilenceTimeout * float64(time.Second))
	}
	if u.Volume != nil {
		current.Volume = *u.Volume
	}
	if u.SoundEnabled != nil {
		current.SoundEnabled = *u.SoundEnabled
	}
	return current
}

// SettingsMessage changes the conversation settings
type SettingsMessage struct {
	BaseMessage
	SettingsUpdate
}

// ClearLogMessage empties the conversation log
type ClearLogMessage struct {
	BaseMessage
}

// VisibilityMessage reports the page being hidden or shown again
type VisibilityMessage struct {
	BaseMessage
	Hidden bool `json:"hidden"`
}

// PlaybackMessage reports that the browser finished or failed an utterance
type PlaybackMessage struct {
	BaseMessage
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// SettingsView is the wire form of entities.Settings
type SettingsView struct {
	SilenceTimeout float64 `json:"silence_timeout"`
	Volume         float64 `json:"volume"`
	SoundEnabled   bool    `json:"sound_enabled"`
}

// NewSettingsView converts settings to their wire form
func NewSettingsView(s entities.Settings) SettingsView {
	return SettingsView{
		SilenceTimeout: s.SilenceTimeout.Seconds(),
		Volume:         s.Volume,
		SoundEnabled:   s.SoundEnabled,
	}
}

// SessionMessage greets a freshly connected client
type SessionMessage struct {
	BaseMessage
	SessionID   string              `json:"session_id"`
	State       string              `json:"state"`
	Status      string              `json:"status"`
	Settings    SettingsView        `json:"settings"`
	AudioFormat string              `json:"audio_format,omitempty"`
	History     []entities.LogEntry `json:"history"`
}

func newSessionMessage(sessionID, audioFormat string, snap usecase.Snapshot, history []entities.LogEntry) *SessionMessage {
	return &SessionMessage{
		BaseMessage: newBase(MessageTypeSession),
		SessionID:   sessionID,
		State:       string(snap.State),
		Status:      snap.Status,
		Settings:    NewSettingsView(snap.Settings),
		AudioFormat: audioFormat,
		History:     history,
	}
}

// StatusMessage announces a state change or a new status line
type StatusMessage struct {
	BaseMessage
	State   string `json:"state"`
	Message string `json:"message"`
}

// LogMessage carries one new conversation log entry
type LogMessage struct {
	BaseMessage
	Entry entities.LogEntry `json:"entry"`
}

// SoundMessage asks the browser to play a cue
type SoundMessage struct {
	BaseMessage
	Sound  string  `json:"sound"`
	Volume float64 `json:"volume"`
}

// RecognitionMessage asks the browser to start or stop its recognizer
type RecognitionMessage struct {
	BaseMessage
	stt.RecognitionCommand
}

// SpeakMessage asks the browser to synthesize an utterance itself
type SpeakMessage struct {
	BaseMessage
	ID        string             `json:"id"`
	Utterance entities.Utterance `json:"utterance"`
}

// SpeakingStartMessage precedes binary audio synthesized by the server
type SpeakingStartMessage struct {
	BaseMessage
	ID        string             `json:"id"`
	Format    string             `json:"format"`
	Utterance entities.Utterance `json:"utterance"`
}

// SpeakingEndMessage follows the last binary audio chunk of an utterance
type SpeakingEndMessage struct {
	BaseMessage
	ID string `json:"id"`
}

// SpeakCancelMessage asks the browser to stop playing an utterance
type SpeakCancelMessage struct {
	BaseMessage
	ID string `json:"id"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an incoming message into its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeMicrophone:
		return decode[MicrophoneMessage](messageBytes, base.Type, nil)
	case MessageTypeCapabilities:
		return decode[CapabilitiesMessage](messageBytes, base.Type, nil)
	case MessageTypeTranscript:
		return decode(messageBytes, base.Type, v.validateTranscript)
	case MessageTypeRecognitionError:
		return decode(messageBytes, base.Type, v.validateRecognitionError)
	case MessageTypeRecognitionEnd:
		return decode[RecognitionEndMessage](messageBytes, base.Type, nil)
	case MessageTypeAudioLevel:
		return decode(messageBytes, base.Type, v.validateAudioLevel)
	case MessageTypeSettings:
		return decode(messageBytes, base.Type, v.validateSettings)
	case MessageTypeClearLog:
		return decode[ClearLogMessage](messageBytes, base.Type, nil)
	case MessageTypeVisibility:
		return decode[VisibilityMessage](messageBytes, base.Type, nil)
	case MessageTypePlaybackEnd, MessageTypePlaybackError:
		return decode[PlaybackMessage](messageBytes, base.Type, nil)
	case MessageTypePing:
		return decode[PingMessage](messageBytes, base.Type, nil)
	case "":
		return nil, fmt.Errorf("message type is required")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func decode[T any](messageBytes []byte, t MessageType, validate func(*T) error) (*T, error) {
	var msg T
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", t, err)
	}
	if validate != nil {
		if err := validate(&msg); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

func (v *MessageValidator) validateTranscript(msg *TranscriptMessage) error {
	if len(msg.Text) > maxTranscriptLength {
		return fmt.Errorf("text must be at most %d bytes", maxTranscriptLength)
	}
	return nil
}

func (v *MessageValidator) validateRecognitionError(msg *RecognitionErrorMessage) error {
	if msg.Error == "" {
		return fmt.Errorf("error is required")
	}
	return nil
}

func (v *MessageValidator) validateAudioLevel(msg *AudioLevelMessage) error {
	if msg.Level < 0 || msg.Level > 1 {
		return fmt.Errorf("level must be between 0 and 1")
	}
	return nil
}

func (v *MessageValidator) validateSettings(msg *SettingsMessage) error {
	if msg.SilenceTimeout == nil && msg.Volume == nil && msg.SoundEnabled == nil {
		return fmt.Errorf("at least one setting is required")
	}
	if msg.SilenceTimeout != nil {
		timeout := time.Duration(*msg.SilenceTimeout * float64(time.Second))
		if timeout < entities.MinSilenceTimeout || timeout > entities.MaxSilenceTimeout {
			return fmt.Errorf("silence_timeout must be between %v and %v seconds",
				entities.MinSilenceTimeout.Seconds(), entities.MaxSilenceTimeout.Seconds())
		}
	}
	if msg.Volume != nil && (*msg.Volume < 0 || *msg.Volume > 1) {
		return fmt.Errorf("volume must be between 0 and 1")
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
