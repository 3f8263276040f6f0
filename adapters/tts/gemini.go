package tts

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/kmfl/server/domain/repositories"
)

const (
	defaultGeminiModel  = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice  = "Kore"
	geminiOutputFormat  = "pcm_24000"
	geminiChunkSize     = 4800
	geminiAudioModality = "AUDIO"
)

// contentGenerator is the part of genai.Models the adapter needs
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig holds configuration for the GeminiTTS adapter
type GeminiConfig struct {
	APIKey string
	Model  string
	Voice  string
}

// NewGeminiConfigFromEnv reads GEMINI_API_KEY, GEMINI_TTS_MODEL and GEMINI_TTS_VOICE
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_TTS_MODEL"),
		Voice:  os.Getenv("GEMINI_TTS_VOICE"),
	}
}

// GeminiTTS implements TextToSpeech with Gemini's audio output modality
type GeminiTTS struct {
	models contentGenerator
	model  string
	voice  string
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*GeminiTTS)(nil)

// NewGeminiTTS creates a Gemini backed synthesizer
func NewGeminiTTS(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiTTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiTTS(client.Models, config, logger), nil
}

func newGeminiTTS(models contentGenerator, config GeminiConfig, logger *zap.Logger) *GeminiTTS {
	return &GeminiTTS{
		models: models,
		model:  orDefault(config.Model, defaultGeminiModel),
		voice:  orDefault(config.Voice, defaultGeminiVoice),
		logger: logger,
	}
}

// OutputFormat names the audio encoding of produced chunks
func (g *GeminiTTS) OutputFormat() string {
	return geminiOutputFormat
}

func (g *GeminiTTS) ConvertTextToSpeech(ctx context.Context, text string, voice repositories.VoiceConfig) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{geminiAudioModality},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: g.voice,
				},
			},
		},
	}

	g.logger.Info("Converting text to speech",
		zap.String("model", g.model),
		zap.String("voice", g.voice),
		zap.String("language", voice.Language))

	response, err := g.models.GenerateContent(ctx, g.model, genai.Text(speechPrompt(text, voice)), config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	audio := extractAudio(response)
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio returned by %s", g.model)
	}

	audioChan := make(chan []byte, 4)
	go func() {
		defer close(audioChan)
		for start := 0; start < len(audio); start += geminiChunkSize {
			end := min(start+geminiChunkSize, len(audio))
			select {
			case audioChan <- audio[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioChan, nil
}

// speechPrompt turns prosody into a style instruction, the model has no rate or pitch knobs
func speechPrompt(text string, voice repositories.VoiceConfig) string {
	var style []string
	switch {
	case voice.Rate > 0 && voice.Rate < 1:
		style = append(style, "a little slowly")
	case voice.Rate > 1:
		style = append(style, "a little quickly")
	}
	if voice.Pitch > 1 {
		style = append(style, "with a slightly higher, friendly pitch")
	} else if voice.Pitch > 0 && voice.Pitch < 1 {
		style = append(style, "with a slightly lower pitch")
	}

	if len(style) == 0 {
		return text
	}
	return fmt.Sprintf("Say %s: %s", strings.Join(style, " and "), text)
}

func extractAudio(response *genai.GenerateContentResponse) []byte {
	if response == nil || len(response.Candidates) == 0 {
		return nil
	}
	candidate := response.Candidates[0]
	if candidate.Content == nil {
		return nil
	}

	var audio []byte
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil {
			audio = append(audio, part.InlineData.Data...)
		}
	}
	return audio
}
