package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/realm-portal/internal/observability"
	"github.com/upb/realm-portal/models"
)

// MockAuthEventRepository is a mock implementation of AuthEventRepository
type MockAuthEventRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.AuthEvent
}

func (m *MockAuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	args := m.Called(ctx, event)

	m.mu.Lock()
	m.inserted = append(m.inserted, event)
	m.mu.Unlock()

	return args.Error(0)
}

func (m *MockAuthEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	args := m.Called(ctx, limit)
	if events := args.Get(0); events != nil {
		return events.([]*models.AuthEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthEventRepository) Inserted() []*models.AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuthEvent(nil), m.inserted...)
}

func TestService_StartStop(t *testing.T) {
	repo := new(MockAuthEventRepository)
	service := NewService(repo, zap.NewNop(), nil, Config{BufferSize: 10, WorkerCount: 2})

	assert.ErrorIs(t, service.Record(models.NewAuthEvent(models.AuthActionLogout, "alice")), ErrNotRunning)

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Running)
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotRunning)
	assert.ErrorIs(t, service.Record(models.NewAuthEvent(models.AuthActionLogout, "alice")), ErrNotRunning)
}

func TestService_DefaultsForZeroConfig(t *testing.T) {
	service := NewService(new(MockAuthEventRepository), zap.NewNop(), nil, Config{})
	stats := service.GetStats()
	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
}

func TestService_RecordWritesEvents(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewService(repo, zap.NewNop(), nil, Config{BufferSize: 100, WorkerCount: 3})
	require.NoError(t, service.Start())

	for i := 0; i < 25; i++ {
		require.NoError(t, service.Record(models.NewAuthEvent(models.AuthActionLoginSucceeded, "alice")))
	}

	// Stop drains the buffer before returning
	require.NoError(t, service.Stop(5*time.Second))

	inserted := repo.Inserted()
	assert.Len(t, inserted, 25)
	assert.Equal(t, models.AuthActionLoginSucceeded, inserted[0].Action)
}

func TestService_ConcurrentRecording(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewService(repo, zap.NewNop(), nil, Config{BufferSize: 1000, WorkerCount: 4})
	require.NoError(t, service.Start())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = service.Record(models.NewAuthEvent(models.AuthActionAccessDenied, "bob"))
			}
		}()
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, repo.Inserted(), 100)
}

func TestService_InsertErrorsDoNotStopWorkers(t *testing.T) {
	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewService(repo, zap.NewNop(), nil, Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.Record(models.NewAuthEvent(models.AuthActionLoginFailed, "a")))
	require.NoError(t, service.Record(models.NewAuthEvent(models.AuthActionLoginFailed, "b")))

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, repo.Inserted(), 2)
}

func TestService_DropsWhenBufferFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	repo := new(MockAuthEventRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}).Return(nil)

	metrics := observability.NewMetrics()
	service := NewService(repo, zap.NewNop(), metrics, Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	// First event occupies the only worker
	require.NoError(t, service.Record(models.NewAuthEvent(models.AuthActionLogout, "1")))
	<-started

	// Second fills the buffer, third is dropped
	require.NoError(t, service.Record(models.NewAuthEvent(models.AuthActionLogout, "2")))
	assert.ErrorIs(t, service.Record(models.NewAuthEvent(models.AuthActionLogout, "3")), ErrBufferFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditEventsDropped))

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, repo.Inserted(), 2)
}

func TestService_Recent(t *testing.T) {
	repo := new(MockAuthEventRepository)
	events := []*models.AuthEvent{models.NewAuthEvent(models.AuthActionLoginSucceeded, "alice")}
	repo.On("ListRecent", mock.Anything, 20).Return(events, nil)

	service := NewService(repo, zap.NewNop(), nil, DefaultConfig())

	got, err := service.Recent(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, events, got)
	repo.AssertExpectations(t)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Record(models.NewAuthEvent(models.AuthActionLogout, "alice")))
}
