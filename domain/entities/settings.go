package entities

import (
	"fmt"
	"time"
)

const (
	MinSilenceTimeout = 1 * time.Second
	MaxSilenceTimeout = 10 * time.Second

	DefaultSilenceTimeout = 3 * time.Second
	DefaultVolume         = 0.8
)

// Settings holds the user adjustable knobs of a conversation
type Settings struct {
	SilenceTimeout time.Duration `json:"silence_timeout"`
	Volume         float64       `json:"volume"`
	SoundEnabled   bool          `json:"sound_enabled"`
}

// DefaultSettings returns the settings a new conversation starts with
func DefaultSettings() Settings {
	return Settings{
		SilenceTimeout: DefaultSilenceTimeout,
		Volume:         DefaultVolume,
		SoundEnabled:   true,
	}
}

// Validate checks the settings against the ranges the controls allow
func (s Settings) Validate() error {
	if s.SilenceTimeout < MinSilenceTimeout || s.SilenceTimeout > MaxSilenceTimeout {
		return fmt.Errorf("silence timeout must be between %s and %s, got %s",
			MinSilenceTimeout, MaxSilenceTimeout, s.SilenceTimeout)
	}
	if s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %f", s.Volume)
	}
	return nil
}

// Utterance is a playback request handed to the speaker
type Utterance struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
}
