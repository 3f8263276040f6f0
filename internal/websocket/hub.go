package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/domain/repositories"
	"github.com/satriahrh/kmfl/server/internal/metrics"
	"github.com/satriahrh/kmfl/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	defaultPlaybackTimeout = 60 * time.Second
)

var ErrSessionConnected = errors.New("session already has a live connection")

// originChecker accepts requests without an Origin header and, when
// allowed is not empty, browser requests from one of the allowed origins
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// HubConfig wires the collaborators shared by every session
type HubConfig struct {
	// STT is the server side recognizer, nil relays the browser recognizer.
	STT repositories.SpeechToText
	// TTS is the server side synthesizer, nil lets the browser speak.
	TTS             repositories.TextToSpeech
	Responder       usecase.Responder
	Controller      usecase.ControllerConfig
	PlaybackTimeout time.Duration
	Clock           clock.Clock
	// AllowedOrigins limits browser origins, empty accepts any origin.
	AllowedOrigins []string
}

// Hub maintains the set of active clients, one per session.
type Hub struct {
	// Registered clients, by session id.
	clients map[string]*Client

	// Sessions issued a token that never connected, with their expiry.
	pending map[string]time.Time

	// Sessions between the upgrade and registration.
	connecting map[string]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	stopped chan struct{}

	// Mutex for thread-safe access to clients, pending and connecting
	mu sync.RWMutex

	stt              repositories.SpeechToText
	tts              repositories.TextToSpeech
	audioFormat      string
	responder        usecase.Responder
	controllerConfig usecase.ControllerConfig
	playbackTimeout  time.Duration
	clock            clock.Clock
	upgrader         websocket.Upgrader

	logger *zap.Logger
}

type audioFormatter interface {
	OutputFormat() string
}

// NewHub creates a new WebSocket hub
func NewHub(cfg HubConfig, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:          make(map[string]*Client),
		pending:          make(map[string]time.Time),
		connecting:       make(map[string]struct{}),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		stopped:          make(chan struct{}),
		stt:              cfg.STT,
		tts:              cfg.TTS,
		responder:        cfg.Responder,
		controllerConfig: cfg.Controller,
		playbackTimeout:  cfg.PlaybackTimeout,
		clock:            cfg.Clock,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	if h.playbackTimeout <= 0 {
		h.playbackTimeout = defaultPlaybackTimeout
	}
	if h.clock == nil {
		h.clock = clock.New()
	}
	if f, ok := cfg.TTS.(audioFormatter); ok {
		h.audioFormat = f.OutputFormat()
	}
	return h
}

// Run starts the hub's main loop, closing every client once ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
				metrics.ActiveSessions.Dec()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			delete(h.pending, client.sessionID)
			delete(h.connecting, client.sessionID)
			h.mu.Unlock()
			metrics.ActiveSessions.Inc()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
				metrics.ActiveSessions.Dec()
			}
			h.mu.Unlock()
			client.close()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
		}
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// reserve claims the session for one connection attempt, it fails while
// another attempt or a live client holds it
func (h *Hub) reserve(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[sessionID]; ok {
		return false
	}
	if _, ok := h.connecting[sessionID]; ok {
		return false
	}
	h.connecting[sessionID] = struct{}{}
	return true
}

func (h *Hub) release(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connecting, sessionID)
}

// IssueSession records a session that was handed a token but has not
// connected yet
func (h *Hub) IssueSession(sessionID string, expiresAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[sessionID] = expiresAt
}

// ExpirePending forgets issued sessions whose token expired before they
// connected, returning how many were dropped
func (h *Hub) ExpirePending(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	expired := 0
	for id, expiresAt := range h.pending {
		if !now.Before(expiresAt) {
			delete(h.pending, id)
			expired++
		}
	}
	return expired
}

// PendingSessions returns the number of issued sessions not yet connected
func (h *Hub) PendingSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending)
}

// Session returns the live client of a session
func (h *Hub) Session(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[sessionID]
	return client, ok
}

// ActiveSessions returns the ids of every connected session
func (h *Hub) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// HandleWebSocket upgrades an authenticated request and hosts the session's
// conversation on it
func (h *Hub) HandleWebSocket(c echo.Context, sessionID string) error {
	if !h.reserve(sessionID) {
		h.logger.Warn("WebSocket connection rejected: session already connected",
			zap.String("sessionID", sessionID))
		return ErrSessionConnected
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.release(sessionID)
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(h, conn, sessionID)
	if !h.registerClient(client) {
		h.release(sessionID)
		client.close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	client.start()
	return nil
}
