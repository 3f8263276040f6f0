package api

import (
	"time"

	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/internal/websocket"
	"github.com/satriahrh/kmfl/server/usecase"
)

// CreateSessionResponse represents the response payload for session creation
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResponse is the debug view of a connected session
type SessionResponse struct {
	SessionID            string                 `json:"session_id"`
	State                string                 `json:"state"`
	Status               string                 `json:"status"`
	WakeCount            int                    `json:"wake_count"`
	AudioLevel           float64                `json:"audio_level"`
	SilenceSeconds       int                    `json:"silence_seconds"`
	MicrophoneGranted    bool                   `json:"microphone_granted"`
	StreamActive         bool                   `json:"stream_active"`
	RecognitionAvailable bool                   `json:"recognition_available"`
	Suspended            bool                   `json:"suspended"`
	Settings             websocket.SettingsView `json:"settings"`
}

func newSessionResponse(sessionID string, snap usecase.Snapshot) SessionResponse {
	return SessionResponse{
		SessionID:            sessionID,
		State:                string(snap.State),
		Status:               snap.Status,
		WakeCount:            snap.WakeCount,
		AudioLevel:           snap.AudioLevel,
		SilenceSeconds:       snap.SilenceSeconds,
		MicrophoneGranted:    snap.MicrophoneGranted,
		StreamActive:         snap.StreamActive,
		RecognitionAvailable: snap.RecognitionAvailable,
		Suspended:            snap.Suspended,
		Settings:             websocket.NewSettingsView(snap.Settings),
	}
}

// LogResponse holds the conversation log of a session, oldest first
type LogResponse struct {
	SessionID string              `json:"session_id"`
	Entries   []entities.LogEntry `json:"entries"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
