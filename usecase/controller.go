package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/domain/repositories"
	"github.com/satriahrh/kmfl/server/internal/metrics"
)

var (
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrControllerStopped = errors.New("controller stopped")
)

const (
	statusWaiting   = `Waiting for wake word: "K.M.F.L."`
	statusListening = "Listening... I'm all ears!"
	statusThinking  = "Thinking... Let me process that."
	statusSpeaking  = "Speaking..."

	logReady         = `Assistant initialized and ready. Say "K.M.F.L." to start.`
	logWakeAck       = "Haan, batao! Main sun rahi hoon."
	logNothingHeard  = "Maaf kijiye, mujhe kuch sunayi nahi diya. Phir se \"K.M.F.L.\" boliye."
	logBackToWake    = "Back to listening for wake word..."
	logMicGranted    = "Microphone access granted. Listening for wake word..."
	logMicRequired   = "Microphone permission required. Please allow access."
	logNoRecognition = "Speech recognition is not available for this session."
)

// ControllerConfig holds the fixed behaviour of a conversation
type ControllerConfig struct {
	WakeWords         []string
	WakeLanguage      string
	UtteranceLanguage string
	SpeechLanguage    string
	SpeechRate        float64
	SpeechPitch       float64
	ThinkingDelay     time.Duration
	RestartBackoff    time.Duration
	ActivityThreshold float64
	LogCapacity       int
	SampleRate        int
	Encoding          string
	Settings          entities.Settings
}

// DefaultControllerConfig returns the configuration of the stock assistant
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		WakeWords:         []string{"k.m.f.l", "kmfl", "k m f l"},
		WakeLanguage:      "en-US",
		UtteranceLanguage: "hi-IN",
		SpeechLanguage:    "hi-IN",
		SpeechRate:        0.9,
		SpeechPitch:       1.1,
		ThinkingDelay:     time.Second,
		RestartBackoff:    time.Second,
		ActivityThreshold: 0.08,
		LogCapacity:       entities.DefaultLogCapacity,
		SampleRate:        16000,
		Encoding:          "LINEAR16",
		Settings:          entities.DefaultSettings(),
	}
}

func (cfg ControllerConfig) withDefaults() ControllerConfig {
	def := DefaultControllerConfig()
	if len(cfg.WakeWords) == 0 {
		cfg.WakeWords = def.WakeWords
	}
	if cfg.WakeLanguage == "" {
		cfg.WakeLanguage = def.WakeLanguage
	}
	if cfg.UtteranceLanguage == "" {
		cfg.UtteranceLanguage = def.UtteranceLanguage
	}
	if cfg.SpeechLanguage == "" {
		cfg.SpeechLanguage = def.SpeechLanguage
	}
	if cfg.SpeechRate <= 0 {
		cfg.SpeechRate = def.SpeechRate
	}
	if cfg.SpeechPitch <= 0 {
		cfg.SpeechPitch = def.SpeechPitch
	}
	if cfg.ThinkingDelay < 0 {
		cfg.ThinkingDelay = def.ThinkingDelay
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = def.RestartBackoff
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = def.LogCapacity
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Encoding == "" {
		cfg.Encoding = def.Encoding
	}
	if cfg.Settings.Validate() != nil {
		cfg.Settings = def.Settings
	}
	words := make([]string, len(cfg.WakeWords))
	for i, w := range cfg.WakeWords {
		words[i] = strings.ToLower(strings.TrimSpace(w))
	}
	cfg.WakeWords = words
	return cfg
}

// Snapshot is a point in time view of a controller
type Snapshot struct {
	State                entities.AssistantState `json:"state"`
	Status               string                  `json:"status"`
	WakeCount            int                     `json:"wake_count"`
	AudioLevel           float64                 `json:"audio_level"`
	SilenceSeconds       int                     `json:"silence_seconds"`
	MicrophoneGranted    bool                    `json:"microphone_granted"`
	StreamActive         bool                    `json:"stream_active"`
	RecognitionAvailable bool                    `json:"recognition_available"`
	Suspended            bool                    `json:"suspended"`
	Settings             entities.Settings       `json:"settings"`
}

// ControllerOption customizes a Controller
type ControllerOption func(*Controller)

// WithClock replaces the wall clock, used by tests to drive timers
func WithClock(c clock.Clock) ControllerOption {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

// Controller runs the wake word conversation state machine of one session.
// Every callback and public call is funneled through a single event loop
// started by Run, so the fields below the queue are owned by that loop.
type Controller struct {
	stt       repositories.SpeechToText
	speaker   Speaker
	sampler   LevelSampler
	responder Responder
	events    EventSink
	logger    *zap.Logger
	clock     clock.Clock
	cfg       ControllerConfig
	log       *entities.ConversationLog

	queue chan func()
	done  chan struct{}

	runCtx               context.Context
	state                entities.AssistantState
	status               string
	settings             entities.Settings
	transcript           transcriptBuffer
	wakeCount            int
	level                float64
	micGranted           bool
	recognitionAvailable bool
	suspended            bool
	lastActivity         time.Time

	stream       repositories.SpeechToTextStreaming
	streamCancel context.CancelFunc
	streamID     uint64
	restartTimer *clock.Timer
	restartGen   uint64
	silenceTimer *clock.Timer
	silenceGen   uint64
	speakCancel  context.CancelFunc
	speakID      uint64

	mu       sync.RWMutex
	snapshot Snapshot
	activity time.Time
}

// NewController creates a controller. stt and sampler may be nil.
func NewController(
	stt repositories.SpeechToText,
	speaker Speaker,
	sampler LevelSampler,
	responder Responder,
	events EventSink,
	cfg ControllerConfig,
	logger *zap.Logger,
	opts ...ControllerOption,
) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		stt:                  stt,
		speaker:              speaker,
		sampler:              sampler,
		responder:            responder,
		events:               events,
		logger:               logger,
		clock:                clock.New(),
		cfg:                  cfg,
		log:                  entities.NewConversationLog(cfg.LogCapacity),
		queue:                make(chan func(), 128),
		done:                 make(chan struct{}),
		state:                entities.StateIdle,
		status:               statusWaiting,
		settings:             cfg.Settings,
		recognitionAvailable: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.publish()
	return c
}

// Run processes events until ctx is cancelled
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx
	defer close(c.done)

	c.appendLog(entities.SenderSystem, logReady)
	c.setStatus(statusWaiting)
	if c.stt == nil {
		c.disableRecognition()
	}
	c.publish()

	if c.sampler != nil {
		go c.forwardLevels(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.publish()
			return
		case fn := <-c.queue:
			fn()
			c.publish()
		}
	}
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// MicrophoneGranted reports that the client has a live microphone
func (c *Controller) MicrophoneGranted() {
	c.post(func() {
		if !c.micGranted {
			c.micGranted = true
			c.appendLog(entities.SenderSystem, logMicGranted)
		}
		if c.stream == nil {
			c.startRecognition()
		}
	})
}

// MicrophoneDenied reports that microphone access was refused
func (c *Controller) MicrophoneDenied() {
	c.post(func() {
		c.micGranted = false
		c.stopRecognition()
		c.logger.Warn("Microphone access denied")
		c.appendLog(entities.SenderSystem, logMicRequired)
	})
}

// RecognitionUnavailable disables speech recognition for the rest of the session
func (c *Controller) RecognitionUnavailable() {
	c.post(c.disableRecognition)
}

// Audio forwards a raw microphone chunk to the active recognition stream
func (c *Controller) Audio(chunk []byte) {
	c.post(func() {
		if c.stream == nil {
			return
		}
		if err := c.stream.Stream(chunk); err != nil {
			c.logger.Debug("Failed to stream audio chunk", zap.Error(err))
		}
	})
}

// UpdateSettings validates and applies new settings
func (c *Controller) UpdateSettings(settings entities.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return c.call(func() {
		c.settings = settings
		c.logger.Info("Settings updated",
			zap.Duration("silenceTimeout", settings.SilenceTimeout),
			zap.Float64("volume", settings.Volume),
			zap.Bool("soundEnabled", settings.SoundEnabled))
	})
}

// ClearLog empties the conversation log
func (c *Controller) ClearLog() error {
	return c.call(func() {
		c.log.Clear()
		c.events.LogCleared()
	})
}

// SetVisibility suspends the session while hidden and resumes it afterwards
func (c *Controller) SetVisibility(hidden bool) {
	c.post(func() {
		if hidden {
			c.suspend()
		} else {
			c.resume()
		}
	})
}

// Snapshot returns the debug view of the controller
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	snap := c.snapshot
	activity := c.activity
	c.mu.RUnlock()

	if snap.State == entities.StateListening && !activity.IsZero() {
		snap.SilenceSeconds = int(c.clock.Since(activity) / time.Second)
	}
	return snap
}

// History returns the conversation log, oldest first
func (c *Controller) History() []entities.LogEntry {
	return c.log.Entries()
}

func (c *Controller) post(fn func()) bool {
	select {
	case c.queue <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) call(fn func()) error {
	result := make(chan struct{})
	if !c.post(func() {
		fn()
		close(result)
	}) {
		return ErrControllerStopped
	}

	select {
	case <-result:
		return nil
	case <-c.done:
		return ErrControllerStopped
	}
}

func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = Snapshot{
		State:                c.state,
		Status:               c.status,
		WakeCount:            c.wakeCount,
		AudioLevel:           c.level,
		MicrophoneGranted:    c.micGranted,
		StreamActive:         c.stream != nil,
		RecognitionAvailable: c.recognitionAvailable,
		Suspended:            c.suspended,
		Settings:             c.settings,
	}
	c.activity = c.lastActivity
}

func (c *Controller) forwardLevels(ctx context.Context) {
	levels := c.sampler.Levels()
	for {
		select {
		case <-ctx.Done():
			return
		case level, ok := <-levels:
			if !ok {
				return
			}
			c.post(func() { c.onLevel(level) })
		}
	}
}

func (c *Controller) transition(next entities.AssistantState, message string) bool {
	if !c.state.CanTransition(next) {
		c.logger.Warn("Ignoring illegal state transition",
			zap.String("from", string(c.state)),
			zap.String("to", string(next)))
		return false
	}

	c.logger.Debug("State transition",
		zap.String("from", string(c.state)),
		zap.String("to", string(next)))
	c.state = next
	c.setStatus(message)
	return true
}

func (c *Controller) setStatus(message string) {
	c.status = message
	c.events.StatusChanged(c.state, message)
}

func (c *Controller) appendLog(sender entities.Sender, text string) {
	entry := entities.LogEntry{
		Sender:    sender,
		Text:      text,
		Timestamp: c.clock.Now(),
	}
	if err := entry.Validate(); err != nil {
		c.logger.Warn("Dropping log entry", zap.String("sender", string(sender)), zap.Error(err))
		return
	}
	c.log.Append(entry)
	c.events.LogAppended(entry)
}

// Recognition

func (c *Controller) canRecognize() bool {
	if !c.recognitionAvailable || !c.micGranted || c.suspended {
		return false
	}
	return c.state == entities.StateIdle || c.state == entities.StateListening
}

func (c *Controller) recognitionConfig() repositories.AudioConfig {
	if c.state == entities.StateListening {
		return repositories.AudioConfig{
			SampleRate:     c.cfg.SampleRate,
			Encoding:       c.cfg.Encoding,
			Language:       c.cfg.UtteranceLanguage,
			Continuous:     true,
			InterimResults: true,
		}
	}
	return repositories.AudioConfig{
		SampleRate: c.cfg.SampleRate,
		Encoding:   c.cfg.Encoding,
		Language:   c.cfg.WakeLanguage,
	}
}

func (c *Controller) startRecognition() {
	if !c.canRecognize() {
		return
	}
	c.stopRecognition()

	config := c.recognitionConfig()
	ctx, cancel := context.WithCancel(c.runCtx)
	stream, err := c.stt.InitTranscribeStreaming(ctx, config)
	if err != nil {
		cancel()
		if errors.Is(err, repositories.ErrRecognitionUnavailable) {
			c.disableRecognition()
			return
		}
		c.logger.Warn("Failed to start speech recognition", zap.Error(err))
		c.scheduleRestart("start_error")
		return
	}

	c.streamID++
	c.stream = stream
	c.streamCancel = cancel
	c.logger.Debug("Speech recognition started",
		zap.String("language", config.Language),
		zap.Bool("continuous", config.Continuous))

	go c.pump(c.streamID, stream)
}

func (c *Controller) stopRecognition() {
	c.stopRestartTimer()
	if c.stream == nil {
		return
	}

	c.streamID++
	if err := c.stream.End(); err != nil {
		c.logger.Debug("Failed to end recognition stream", zap.Error(err))
	}
	c.streamCancel()
	c.stream = nil
	c.streamCancel = nil
}

func (c *Controller) pump(id uint64, stream repositories.SpeechToTextStreaming) {
	for event := range stream.Events() {
		if !c.post(func() { c.onTranscript(id, event) }) {
			return
		}
	}
	c.post(func() { c.onStreamEnd(id) })
}

func (c *Controller) scheduleRestart(reason string) {
	c.stopRestartTimer()
	metrics.RecognitionRestarts.WithLabelValues(reason).Inc()

	gen := c.restartGen
	c.restartTimer = c.clock.AfterFunc(c.cfg.RestartBackoff, func() {
		c.post(func() {
			if gen != c.restartGen {
				return
			}
			c.restartTimer = nil
			if c.stream == nil {
				c.startRecognition()
			}
		})
	})
}

func (c *Controller) stopRestartTimer() {
	c.restartGen++
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

func (c *Controller) disableRecognition() {
	if !c.recognitionAvailable {
		return
	}
	c.recognitionAvailable = false
	c.stopRecognition()
	c.logger.Error("Speech recognition unavailable, disabling it for this session")
	c.appendLog(entities.SenderSystem, logNoRecognition)
}

func (c *Controller) onStreamEnd(id uint64) {
	if id != c.streamID || c.stream == nil {
		return
	}
	c.streamCancel()
	c.stream = nil
	c.streamCancel = nil

	if c.canRecognize() {
		metrics.RecognitionRestarts.WithLabelValues("end").Inc()
		c.startRecognition()
	}
}

func (c *Controller) onTranscript(id uint64, event repositories.TranscriptEvent) {
	if id != c.streamID || c.stream == nil {
		return
	}

	if event.Err != nil {
		switch {
		case errors.Is(event.Err, repositories.ErrRecognitionAborted):
			c.logger.Debug("Speech recognition aborted")
		case errors.Is(event.Err, repositories.ErrRecognitionUnavailable):
			c.disableRecognition()
		default:
			c.logger.Warn("Speech recognition error", zap.Error(event.Err))
			c.stopRecognition()
			c.scheduleRestart("error")
		}
		return
	}

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}

	switch c.state {
	case entities.StateIdle:
		if c.matchesWakeWord(text) {
			c.onWake()
		}
	case entities.StateListening:
		c.transcript.Add(event)
		c.armSilence()
		if !event.IsFinal {
			c.setStatus(fmt.Sprintf(`Listening: "%s"`, text))
		}
	}
}

func (c *Controller) matchesWakeWord(text string) bool {
	text = strings.ToLower(text)
	for _, w := range c.cfg.WakeWords {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (c *Controller) onLevel(level float64) {
	c.level = level
	if c.state == entities.StateListening && level > c.cfg.ActivityThreshold {
		c.armSilence()
	}
}

// Turn

func (c *Controller) onWake() {
	if c.state != entities.StateIdle {
		return
	}

	c.wakeCount++
	metrics.WakeDetections.Inc()
	c.logger.Info("Wake word detected", zap.Int("wakeCount", c.wakeCount))

	if c.settings.SoundEnabled {
		c.events.SoundRequested(entities.SoundWake, c.settings.Volume)
	}
	c.transition(entities.StateListening, statusListening)
	c.appendLog(entities.SenderAssistant, logWakeAck)

	c.transcript.Reset()
	c.startRecognition()
	c.armSilence()
}

func (c *Controller) armSilence() {
	c.stopSilence()
	gen := c.silenceGen
	c.lastActivity = c.clock.Now()
	c.silenceTimer = c.clock.AfterFunc(c.settings.SilenceTimeout, func() {
		c.post(func() { c.onSilence(gen) })
	})
}

func (c *Controller) stopSilence() {
	c.silenceGen++
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
		c.silenceTimer = nil
	}
}

func (c *Controller) onSilence(gen uint64) {
	if gen != c.silenceGen || c.state != entities.StateListening {
		return
	}
	c.silenceTimer = nil

	text := c.transcript.Text()
	c.transcript.Reset()
	if text == "" {
		metrics.SilenceTimeouts.Inc()
		c.logger.Info("Silence timeout without speech")
		c.appendLog(entities.SenderAssistant, logNothingHeard)
		c.toIdle()
		return
	}
	c.think(text)
}

func (c *Controller) think(text string) {
	c.stopSilence()
	if !c.transition(entities.StateThinking, statusThinking) {
		return
	}
	c.stopRecognition()
	c.appendLog(entities.SenderUser, text)

	c.clock.AfterFunc(c.cfg.ThinkingDelay, func() {
		c.post(func() { c.respond(text) })
	})
}

func (c *Controller) respond(text string) {
	if c.state != entities.StateThinking {
		return
	}

	reply := c.responder.Respond(text)
	metrics.Turns.WithLabelValues(reply.Category).Inc()
	c.logger.Info("Reply selected", zap.String("category", reply.Category))

	c.transition(entities.StateSpeaking, statusSpeaking)
	c.appendLog(entities.SenderAssistant, reply.Text)
	if c.settings.SoundEnabled {
		c.events.SoundRequested(entities.SoundEnd, c.settings.Volume)
	}
	c.speak(reply.Text)
}

func (c *Controller) speak(text string) {
	utterance := entities.Utterance{
		Text:     text,
		Language: c.cfg.SpeechLanguage,
		Rate:     c.cfg.SpeechRate,
		Pitch:    c.cfg.SpeechPitch,
		Volume:   c.settings.Volume,
	}

	c.speakID++
	id := c.speakID
	ctx, cancel := context.WithCancel(c.runCtx)
	c.speakCancel = cancel

	go func() {
		var err error
		if c.speaker != nil {
			err = c.speaker.Speak(ctx, utterance)
		}
		c.post(func() { c.onSpeakDone(id, err) })
	}()
}

func (c *Controller) onSpeakDone(id uint64, err error) {
	if id != c.speakID || c.state != entities.StateSpeaking {
		return
	}
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.logger.Info("Playback cancelled")
		} else {
			metrics.PlaybackFailures.Inc()
			c.logger.Warn("Playback failed", zap.Error(err))
		}
	}
	c.toIdle()
}

func (c *Controller) toIdle() {
	c.stopSilence()
	c.transcript.Reset()
	if !c.transition(entities.StateIdle, statusWaiting) {
		return
	}
	c.startRecognition()
	c.appendLog(entities.SenderSystem, logBackToWake)
}

// Visibility

func (c *Controller) suspend() {
	if c.suspended {
		return
	}
	c.suspended = true
	c.stopRecognition()
	if c.speakCancel != nil {
		c.speakCancel()
	}
	if c.sampler != nil {
		c.sampler.Suspend()
	}
	c.logger.Info("Session suspended")
}

func (c *Controller) resume() {
	if !c.suspended {
		return
	}
	c.suspended = false
	if c.sampler != nil {
		c.sampler.Resume()
	}
	if c.stream == nil {
		c.startRecognition()
	}
	c.logger.Info("Session resumed")
}

func (c *Controller) shutdown() {
	c.stopSilence()
	c.stopRecognition()
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
}
