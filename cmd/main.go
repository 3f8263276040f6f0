package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/adapters/stt"
	"github.com/satriahrh/kmfl/server/adapters/tts"
	"github.com/satriahrh/kmfl/server/domain/repositories"
	"github.com/satriahrh/kmfl/server/internal/api"
	"github.com/satriahrh/kmfl/server/internal/auth"
	"github.com/satriahrh/kmfl/server/internal/config"
	"github.com/satriahrh/kmfl/server/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Auth.Secret == config.DefaultJWTSecret {
		logger.Warn("JWT_SECRET is not set, using the development secret")
	}
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("ALLOWED_ORIGINS is not set, accepting websocket connections from any origin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	reply, err := cfg.Responder()
	if err != nil {
		logger.Fatal("Failed to load response catalog", zap.Error(err))
	}

	var speechToText repositories.SpeechToText
	switch cfg.STT.Provider {
	case config.ProviderGoogle:
		google, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Google speech to text", zap.Error(err))
		}
		defer google.Close()
		speechToText = google
	}

	var textToSpeech repositories.TextToSpeech
	switch cfg.TTS.Provider {
	case config.ProviderElevenLabs:
		elevenLabs, err := tts.NewElevenLabsTTS(cfg.TTS.ElevenLabs, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Eleven Labs text to speech", zap.Error(err))
		}
		textToSpeech = elevenLabs
	case config.ProviderGemini:
		gemini, err := tts.NewGeminiTTS(ctx, cfg.TTS.Gemini, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini text to speech", zap.Error(err))
		}
		textToSpeech = gemini
	}

	logger.Info("Speech providers selected",
		zap.String("stt", cfg.STT.Provider),
		zap.String("tts", cfg.TTS.Provider))

	// Initialize WebSocket hub
	hub := websocket.NewHub(websocket.HubConfig{
		STT:             speechToText,
		TTS:             textToSpeech,
		Responder:       reply,
		Controller:      cfg.Assistant,
		PlaybackTimeout: cfg.PlaybackTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, logger)
	go hub.Run(ctx)

	cleanup := websocket.NewSessionCleanupService(hub, 0, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.SessionTTL), logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	<-ctx.Done()
	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
