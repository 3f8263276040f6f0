package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/satriahrh/kmfl/server/adapters/tts"
	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/internal/responder"
	"github.com/satriahrh/kmfl/server/usecase"
)

const (
	ProviderClient     = "client"
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
	ProviderGemini     = "gemini"

	DefaultJWTSecret = "kmfl-development-secret"
)

// Config is the runtime configuration of the server
type Config struct {
	Port string

	Auth      AuthConfig
	STT       STTConfig
	TTS       TTSConfig
	Assistant usecase.ControllerConfig

	PlaybackTimeout time.Duration
	CatalogPath     string
	TimeZone        string
	// AllowedOrigins lists the browser origins allowed on /ws, empty allows any.
	AllowedOrigins []string
}

type AuthConfig struct {
	Secret     string
	SessionTTL time.Duration
}

type STTConfig struct {
	Provider   string
	SampleRate int
	Encoding   string
}

type TTSConfig struct {
	Provider   string
	ElevenLabs tts.ElevenLabsConfig
	Gemini     tts.GeminiConfig
}

// Load reads .env when present, then resolves everything from the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	assistant := usecase.DefaultControllerConfig()
	if words := envOrDefault("WAKE_WORDS", ""); words != "" {
		assistant.WakeWords = splitList(words)
	}
	assistant.WakeLanguage = envOrDefault("WAKE_LANGUAGE", assistant.WakeLanguage)
	assistant.UtteranceLanguage = envOrDefault("UTTERANCE_LANGUAGE", assistant.UtteranceLanguage)
	assistant.SpeechLanguage = envOrDefault("SPEECH_LANGUAGE", assistant.SpeechLanguage)
	assistant.SpeechRate = envOrDefaultFloat("SPEECH_RATE", assistant.SpeechRate)
	assistant.SpeechPitch = envOrDefaultFloat("SPEECH_PITCH", assistant.SpeechPitch)
	assistant.ThinkingDelay = envOrDefaultDuration("THINKING_DELAY", assistant.ThinkingDelay)
	assistant.RestartBackoff = envOrDefaultDuration("RECOGNITION_RESTART_BACKOFF", assistant.RestartBackoff)
	assistant.ActivityThreshold = envOrDefaultFloat("ACTIVITY_THRESHOLD", assistant.ActivityThreshold)
	assistant.LogCapacity = envOrDefaultInt("LOG_CAPACITY", assistant.LogCapacity)
	assistant.Settings = entities.Settings{
		SilenceTimeout: envOrDefaultDuration("SILENCE_TIMEOUT", assistant.Settings.SilenceTimeout),
		Volume:         envOrDefaultFloat("VOLUME", assistant.Settings.Volume),
		SoundEnabled:   envOrDefaultBool("SOUND_ENABLED", assistant.Settings.SoundEnabled),
	}

	cfg := Config{
		Port: envOrDefault("PORT", "8080"),
		Auth: AuthConfig{
			Secret:     envOrDefault("JWT_SECRET", DefaultJWTSecret),
			SessionTTL: envOrDefaultDuration("SESSION_TTL", 24*time.Hour),
		},
		STT: STTConfig{
			Provider:   strings.ToLower(envOrDefault("STT_PROVIDER", ProviderClient)),
			SampleRate: envOrDefaultInt("STT_SAMPLE_RATE", 16000),
			Encoding:   envOrDefault("STT_ENCODING", "LINEAR16"),
		},
		TTS: TTSConfig{
			Provider:   strings.ToLower(envOrDefault("TTS_PROVIDER", ProviderClient)),
			ElevenLabs: tts.NewElevenLabsConfigFromEnv(),
			Gemini:     tts.NewGeminiConfigFromEnv(),
		},
		Assistant:       assistant,
		PlaybackTimeout: envOrDefaultDuration("PLAYBACK_TIMEOUT", 60*time.Second),
		CatalogPath:     envOrDefault("CATALOG_PATH", ""),
		TimeZone:        envOrDefault("ASSISTANT_TIMEZONE", "Asia/Kolkata"),
		AllowedOrigins:  splitList(envOrDefault("ALLOWED_ORIGINS", "")),
	}
	cfg.Assistant.SampleRate = cfg.STT.SampleRate
	cfg.Assistant.Encoding = cfg.STT.Encoding

	return cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	if c.Auth.Secret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.Auth.SessionTTL)
	}

	switch c.STT.Provider {
	case ProviderClient, ProviderGoogle:
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STT.Provider)
	}
	if c.STT.SampleRate <= 0 {
		return fmt.Errorf("STT_SAMPLE_RATE must be positive, got %d", c.STT.SampleRate)
	}

	switch c.TTS.Provider {
	case ProviderClient:
	case ProviderElevenLabs:
		if err := tts.ValidateElevenLabsConfig(c.TTS.ElevenLabs); err != nil {
			return fmt.Errorf("invalid eleven labs config: %w", err)
		}
	case ProviderGemini:
		if c.TTS.Gemini.APIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini TTS provider")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTS.Provider)
	}

	if err := c.Assistant.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid default settings: %w", err)
	}
	if c.PlaybackTimeout <= 0 {
		return fmt.Errorf("PLAYBACK_TIMEOUT must be positive, got %s", c.PlaybackTimeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the assistant time zone
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid ASSISTANT_TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Responder builds the reply selector from CATALOG_PATH, or the embedded
// catalog when unset, rendering times in the assistant time zone
func (c Config) Responder() (*responder.Responder, error) {
	catalog, err := responder.LoadCatalog(c.CatalogPath)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return responder.New(catalog, responder.WithLocation(loc)), nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
