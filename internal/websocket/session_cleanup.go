package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = time.Minute
	defaultMaxIdle         = 30 * time.Minute
)

// SessionExpirer removes sessions nobody used for a while
type SessionExpirer interface {
	ExpireIdle(ctx context.Context, maxIdle time.Duration) (int, error)
}

// SessionCleanupService handles background tasks for session management
type SessionCleanupService struct {
	expirer  SessionExpirer
	interval time.Duration
	maxIdle  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service. Zero
// durations fall back to a one minute sweep of sessions idle for 30 minutes.
func NewSessionCleanupService(expirer SessionExpirer, interval, maxIdle time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = defaultCleanupInterval
		logger.Info("Using default cleanup interval", zap.Duration("interval", interval))
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
		logger.Info("Using default session idle timeout", zap.Duration("maxIdle", maxIdle))
	}
	return &SessionCleanupService{
		expirer:  expirer,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("interval", s.interval),
		zap.Duration("maxIdle", s.maxIdle))
}

// Stop gracefully stops the cleanup service and waits for the loop to exit
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info("Session cleanup service stopped")
}

// Run starts the service and stops it when ctx is done
func (s *SessionCleanupService) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
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

// runCleanup performs the actual cleanup of idle sessions
func (s *SessionCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	removed, err := s.expirer.ExpireIdle(ctx, s.maxIdle)
	if err != nil {
		s.logger.Error("Failed to expire sessions", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("Expired idle sessions", zap.Int("removed", removed))
	}
}
