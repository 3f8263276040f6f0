package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "JWT_SECRET", "SESSION_TTL", "STT_PROVIDER", "STT_SAMPLE_RATE", "STT_ENCODING",
		"TTS_PROVIDER", "ELEVEN_LABS_API_KEY", "GEMINI_API_KEY", "WAKE_WORDS", "SILENCE_TIMEOUT",
		"VOLUME", "SOUND_ENABLED", "PLAYBACK_TIMEOUT", "CATALOG_PATH", "ASSISTANT_TIMEZONE",
		"SPEECH_RATE", "THINKING_DELAY", "LOG_CAPACITY", "ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.STT.Provider != ProviderClient || cfg.TTS.Provider != ProviderClient {
		t.Errorf("Expected client providers, got %s/%s", cfg.STT.Provider, cfg.TTS.Provider)
	}
	if cfg.Assistant.Settings.SilenceTimeout != 3*time.Second {
		t.Errorf("Expected 3s silence timeout, got %s", cfg.Assistant.Settings.SilenceTimeout)
	}
	if cfg.Assistant.SpeechRate != 0.9 || cfg.Assistant.SpeechPitch != 1.1 {
		t.Errorf("Unexpected prosody %f/%f", cfg.Assistant.SpeechRate, cfg.Assistant.SpeechPitch)
	}
	if cfg.TimeZone != "Asia/Kolkata" {
		t.Errorf("Expected Asia/Kolkata, got %s", cfg.TimeZone)
	}
	if len(cfg.Assistant.WakeWords) != 3 {
		t.Errorf("Expected 3 wake words, got %v", cfg.Assistant.WakeWords)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("Expected no origin restriction, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "9090")
	t.Setenv("WAKE_WORDS", "jarvis, hey jarvis ,")
	t.Setenv("SILENCE_TIMEOUT", "5s")
	t.Setenv("VOLUME", "0.25")
	t.Setenv("SOUND_ENABLED", "off")
	t.Setenv("SPEECH_RATE", "not-a-number")
	t.Setenv("STT_PROVIDER", "Google")
	t.Setenv("STT_SAMPLE_RATE", "48000")
	t.Setenv("LOG_CAPACITY", "10")
	t.Setenv("ALLOWED_ORIGINS", "https://kmfl.example, http://localhost:5173")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if strings.Join(cfg.Assistant.WakeWords, "|") != "jarvis|hey jarvis" {
		t.Errorf("Unexpected wake words %v", cfg.Assistant.WakeWords)
	}
	if cfg.Assistant.Settings.SilenceTimeout != 5*time.Second {
		t.Errorf("Expected 5s, got %s", cfg.Assistant.Settings.SilenceTimeout)
	}
	if cfg.Assistant.Settings.Volume != 0.25 || cfg.Assistant.Settings.SoundEnabled {
		t.Errorf("Unexpected settings %+v", cfg.Assistant.Settings)
	}
	if cfg.Assistant.SpeechRate != 0.9 {
		t.Errorf("Expected invalid rate to fall back to 0.9, got %f", cfg.Assistant.SpeechRate)
	}
	if cfg.STT.Provider != ProviderGoogle || cfg.Assistant.SampleRate != 48000 {
		t.Errorf("Unexpected STT config %+v / %d", cfg.STT, cfg.Assistant.SampleRate)
	}
	if cfg.Assistant.LogCapacity != 10 {
		t.Errorf("Expected log capacity 10, got %d", cfg.Assistant.LogCapacity)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://kmfl.example|http://localhost:5173" {
		t.Errorf("Unexpected allowed origins %v", cfg.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	base, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Port = "http" }, "invalid PORT"},
		{"empty secret", func(c *Config) { c.Auth.Secret = "" }, "JWT_SECRET"},
		{"unknown stt", func(c *Config) { c.STT.Provider = "whisper" }, "unknown STT_PROVIDER"},
		{"unknown tts", func(c *Config) { c.TTS.Provider = "polly" }, "unknown TTS_PROVIDER"},
		{"eleven labs without key", func(c *Config) { c.TTS.Provider = ProviderElevenLabs }, "eleven labs"},
		{"gemini without key", func(c *Config) { c.TTS.Provider = ProviderGemini }, "GEMINI_API_KEY"},
		{"silence out of range", func(c *Config) { c.Assistant.Settings.SilenceTimeout = 30 * time.Second }, "default settings"},
		{"bad time zone", func(c *Config) { c.TimeZone = "Mars/Olympus" }, "ASSISTANT_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResponder(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	reply, err := cfg.Responder()
	if err != nil {
		t.Fatalf("Expected built-in catalog to load, got %v", err)
	}
	if got := reply.Respond("namaste").Category; got != "greetings" {
		t.Errorf("Expected greetings, got %s", got)
	}

	cfg.CatalogPath = "does-not-exist.yaml"
	if _, err := cfg.Responder(); err == nil || !strings.Contains(err.Error(), "does-not-exist.yaml") {
		t.Errorf("Expected missing catalog error, got %v", err)
	}
}
