package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/adapters/audio"
	"github.com/satriahrh/kmfl/server/adapters/stt"
	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/domain/repositories"
	"github.com/satriahrh/kmfl/server/usecase"
)

var (
	ErrClientClosed      = errors.New("client connection closed")
	ErrSynthesisRequired = errors.New("client cannot synthesize speech")
	ErrPlaybackTimeout   = errors.New("playback timed out")
	errNoAudio           = errors.New("speech synthesis produced no audio")
)

const maxTranscriptLength = 4096

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the
// conversation controller of one session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	sessionID string
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	controller *usecase.Controller
	meter      *audio.LevelMeter
	// relay is nil when the server runs its own recognizer
	relay     *stt.RelaySpeechToText
	validator *MessageValidator

	mu         sync.Mutex
	playbacks  map[string]chan error
	canSpeak   bool
	closedOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	logger := hub.logger.With(zap.String("sessionID", sessionID))

	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		sessionID: sessionID,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		meter:     audio.NewLevelMeter(0, 0, hub.clock),
		validator: NewMessageValidator(),
		playbacks: make(map[string]chan error),
		canSpeak:  true,
	}

	recognizer := hub.stt
	if recognizer == nil {
		c.relay = stt.NewRelaySpeechToText(c.sendRecognition, logger)
		recognizer = c.relay
	}
	c.controller = usecase.NewController(
		recognizer,
		c,
		c.meter,
		hub.responder,
		c,
		hub.controllerConfig,
		logger,
		usecase.WithClock(hub.clock),
	)
	return c
}

// start greets the peer and launches the session goroutines
func (c *Client) start() {
	c.sendJSON(newSessionMessage(c.sessionID, c.hub.audioFormat, c.controller.Snapshot(), c.controller.History()))

	go c.meter.Run(c.ctx)
	go c.controller.Run(c.ctx)
	go c.writePump()
	go c.readPump()
}

// close stops the controller and the pumps, it is safe to call repeatedly
func (c *Client) close() {
	c.closedOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// Controller exposes the conversation controller of the session
func (c *Client) Controller() *usecase.Controller {
	return c.controller
}

// SessionID returns the session the client belongs to
func (c *Client) SessionID() string {
	return c.sessionID
}

// readPump pumps messages from the websocket connection to the controller.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps queued messages to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(data WriteData) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- data:
		return true
	}
}

func (c *Client) sendJSON(msg interface{}) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendError(code, message string) {
	c.sendJSON(CreateErrorMessage(code, message))
}

// processMessage dispatches a JSON control message from the browser
func (c *Client) processMessage(message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, err.Error())
		return
	}

	switch msg := parsed.(type) {
	case *MicrophoneMessage:
		if msg.Granted {
			c.controller.MicrophoneGranted()
		} else {
			c.controller.MicrophoneDenied()
		}

	case *CapabilitiesMessage:
		c.handleCapabilities(msg)

	case *TranscriptMessage:
		if c.relay == nil {
			c.logger.Debug("Ignoring client transcript, server recognizer is active")
			return
		}
		c.relay.Publish(msg.Stream, msg.Text, msg.IsFinal)

	case *RecognitionErrorMessage:
		if c.relay == nil {
			return
		}
		c.logger.Debug("Client recognizer error",
			zap.Uint64("stream", msg.Stream),
			zap.String("error", msg.Error))
		c.relay.Fail(msg.Stream, msg.Error)

	case *RecognitionEndMessage:
		if c.relay != nil {
			c.relay.Finish(msg.Stream)
		}

	case *AudioLevelMessage:
		c.meter.Observe(msg.Level)

	case *SettingsMessage:
		settings := msg.Apply(c.controller.Snapshot().Settings)
		if err := c.controller.UpdateSettings(settings); err != nil {
			c.sendError(ErrorCodeInvalidSettings, err.Error())
		}

	case *ClearLogMessage:
		if err := c.controller.ClearLog(); err != nil {
			c.logger.Debug("Failed to clear log", zap.Error(err))
		}

	case *VisibilityMessage:
		c.controller.SetVisibility(msg.Hidden)

	case *PlaybackMessage:
		var playbackErr error
		if msg.Type == MessageTypePlaybackError {
			playbackErr = fmt.Errorf("client playback failed: %s", msg.Error)
		}
		c.resolvePlayback(msg.ID, playbackErr)

	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

func (c *Client) handleCapabilities(msg *CapabilitiesMessage) {
	c.logger.Info("Client capabilities",
		zap.Bool("recognition", msg.Recognition),
		zap.Bool("synthesis", msg.Synthesis))

	if !msg.Recognition && c.relay != nil {
		c.relay.MarkUnavailable()
		c.controller.RecognitionUnavailable()
	}

	c.mu.Lock()
	c.canSpeak = msg.Synthesis
	c.mu.Unlock()
}

// processBinaryAudioChunk handles PCM16 microphone audio
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.meter.ObservePCM16(data)
	c.controller.Audio(data)
}

func (c *Client) sendRecognition(cmd stt.RecognitionCommand) {
	c.sendJSON(&RecognitionMessage{
		BaseMessage:        newBase(MessageTypeRecognition),
		RecognitionCommand: cmd,
	})
}

// StatusChanged implements usecase.EventSink
func (c *Client) StatusChanged(state entities.AssistantState, message string) {
	c.sendJSON(&StatusMessage{
		BaseMessage: newBase(MessageTypeStatus),
		State:       string(state),
		Message:     message,
	})
}

// LogAppended implements usecase.EventSink
func (c *Client) LogAppended(entry entities.LogEntry) {
	c.sendJSON(&LogMessage{
		BaseMessage: newBase(MessageTypeLog),
		Entry:       entry,
	})
}

// LogCleared implements usecase.EventSink
func (c *Client) LogCleared() {
	msg := newBase(MessageTypeLogCleared)
	c.sendJSON(&msg)
}

// SoundRequested implements usecase.EventSink
func (c *Client) SoundRequested(sound entities.SoundEffect, volume float64) {
	c.sendJSON(&SoundMessage{
		BaseMessage: newBase(MessageTypeSound),
		Sound:       string(sound),
		Volume:      volume,
	})
}

// Speak implements usecase.Speaker. Audio is synthesized on the server when
// a provider is configured, otherwise the browser is asked to speak. Either
// way it returns once the browser reports the end of playback.
func (c *Client) Speak(ctx context.Context, utterance entities.Utterance) error {
	id := uuid.NewString()
	done := c.expectPlayback(id)
	defer c.forgetPlayback(id)

	if c.hub.tts != nil {
		if err := c.streamSpeech(ctx, id, utterance); err != nil {
			return err
		}
	} else {
		c.mu.Lock()
		canSpeak := c.canSpeak
		c.mu.Unlock()
		if !canSpeak {
			return ErrSynthesisRequired
		}
		if !c.sendJSON(&SpeakMessage{
			BaseMessage: newBase(MessageTypeSpeak),
			ID:          id,
			Utterance:   utterance,
		}) {
			return ErrClientClosed
		}
	}

	timer := c.hub.clock.Timer(c.hub.playbackTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.sendJSON(&SpeakCancelMessage{BaseMessage: newBase(MessageTypeSpeakCancel), ID: id})
		return ctx.Err()
	case <-timer.C:
		c.sendJSON(&SpeakCancelMessage{BaseMessage: newBase(MessageTypeSpeakCancel), ID: id})
		return fmt.Errorf("%w after %s", ErrPlaybackTimeout, c.hub.playbackTimeout)
	case <-c.ctx.Done():
		return ErrClientClosed
	}
}

func (c *Client) streamSpeech(ctx context.Context, id string, utterance entities.Utterance) error {
	chunks, err := c.hub.tts.ConvertTextToSpeech(ctx, utterance.Text, repositories.VoiceConfig{
		Language: utterance.Language,
		Rate:     utterance.Rate,
		Pitch:    utterance.Pitch,
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	c.sendJSON(&SpeakingStartMessage{
		BaseMessage: newBase(MessageTypeSpeakingStart),
		ID:          id,
		Format:      c.hub.audioFormat,
		Utterance:   utterance,
	})

	total := 0
	for {
		select {
		case <-ctx.Done():
			c.sendJSON(&SpeakCancelMessage{BaseMessage: newBase(MessageTypeSpeakCancel), ID: id})
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				c.logger.Debug("Streamed synthesized speech", zap.String("id", id), zap.Int("bytes", total))
				c.sendJSON(&SpeakingEndMessage{BaseMessage: newBase(MessageTypeSpeakingEnd), ID: id})
				if total == 0 {
					return errNoAudio
				}
				return nil
			}
			total += len(chunk)
			if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: chunk}) {
				return ErrClientClosed
			}
		}
	}
}

func (c *Client) expectPlayback(id string) <-chan error {
	done := make(chan error, 1)
	c.mu.Lock()
	c.playbacks[id] = done
	c.mu.Unlock()
	return done
}

func (c *Client) forgetPlayback(id string) {
	c.mu.Lock()
	delete(c.playbacks, id)
	c.mu.Unlock()
}

// resolvePlayback completes the pending playback with the given id, an
// empty id completes every pending playback
func (c *Client) resolvePlayback(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for pending, done := range c.playbacks {
		if id != "" && id != pending {
			continue
		}
		select {
		case done <- err:
		default:
		}
	}
}
