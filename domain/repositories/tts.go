package repositories

import "context"

// VoiceConfig carries prosody for a synthesis request
type VoiceConfig struct {
	Language string  `json:"language"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
}

type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string, voice VoiceConfig) (<-chan []byte, error)
}
