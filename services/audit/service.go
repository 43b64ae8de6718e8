package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/realm-portal/internal/observability"
	"github.com/upb/realm-portal/models"
	"github.com/upb/realm-portal/repositories"
)

var (
	// ErrNotRunning is returned when recording on a service that is not started or already stopped
	ErrNotRunning = errors.New("audit service not running")

	// ErrBufferFull is returned when the event buffer has no room
	ErrBufferFull = errors.New("audit event buffer full")
)

// Recorder accepts auth events for the audit trail
type Recorder interface {
	Record(event *models.AuthEvent) error
}

// Discard is a Recorder that drops every event
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(*models.AuthEvent) error { return nil }

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  256,
		WorkerCount: 2,
	}
}

// Service writes auth events to the repository from a pool of background workers.
// Record never blocks the request path; events are dropped when the buffer is full.
type Service struct {
	repo        repositories.AuthEventRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	eventChan   chan *models.AuthEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	mu          sync.Mutex
	started     bool
	stopped     bool
}

// NewService creates a new audit Service
func NewService(repo repositories.AuthEventRepository, logger *zap.Logger, metrics *observability.Metrics, cfg Config) *Service {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Service{
		repo:        repo,
		logger:      logger,
		metrics:     metrics,
		eventChan:   make(chan *models.AuthEvent, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		bufferSize:  cfg.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits up to timeout for pending ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an event without blocking
func (s *Service) Record(event *models.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("username", event.Username))
		return ErrBufferFull
	}
}

// Recent returns the newest recorded events
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	return s.repo.ListRecent(ctx, limit)
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for event := range s.eventChan {
		if err := s.write(event); err != nil {
			s.logger.Error("failed to write audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)),
				zap.String("event_id", event.ID.String()))
		}
	}
}

func (s *Service) write(event *models.AuthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.repo.Insert(ctx, event)
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Running       bool
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Running:       s.started && !s.stopped,
	}
}
