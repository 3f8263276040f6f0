package websocket

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Minute

// SessionCleanupService drops issued sessions that never connected
type SessionCleanupService struct {
	hub      *Hub
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(hub *Hub, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &SessionCleanupService{
		hub:      hub,
		interval: interval,
		clock:    hub.clock,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info("Session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.doneChan)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *SessionCleanupService) runCleanup() {
	expired := s.hub.ExpirePending(s.clock.Now())
	if expired > 0 {
		s.logger.Info("Expired sessions that never connected", zap.Int("count", expired))
	}
}
