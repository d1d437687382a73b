package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/repository/mocks"
	"github.com/popeskul/insdr-dispatcher/internal/service"
	servicemocks "github.com/popeskul/insdr-dispatcher/internal/service/mocks"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthService_GetHealth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockRepo := mocks.NewMockRepository(ctrl)
	mockScheduler := servicemocks.NewMockSchedulerService(ctrl)
	mockDispatch := servicemocks.NewMockDispatchService(ctrl)

	mockScheduler.EXPECT().IsRunning().Return(true)
	mockRepo.EXPECT().Ping().Return(nil)
	mockDispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Closed, uint32(100), uint32(5))

	healthService := service.NewHealthService(mockRepo, stubPinger{}, mockScheduler, mockDispatch)

	status := healthService.GetHealth()

	require.NotNil(t, status)
	assert.Equal(t, api.Healthy, status.Status)
	assert.Equal(t, api.HealthResponseSchedulerStatusRunning, status.SchedulerStatus)
	assert.Equal(t, api.HealthResponseDatabaseStatusConnected, status.DatabaseStatus)
	assert.Equal(t, api.HealthResponseRedisStatusConnected, status.RedisStatus)
	assert.Equal(t, api.Closed, status.CircuitBreakerState)
	assert.Equal(t, "Requests: 100, Failures: 5 (5.0%)", status.CircuitBreakerStatus)
}

func TestHealthService_GetHealth_Failure(t *testing.T) {
	tests := []struct {
		name                    string
		cache                   service.Pinger
		setupMocks              func(*mocks.MockRepository, *servicemocks.MockSchedulerService, *servicemocks.MockDispatchService)
		expectedStatus          api.HealthResponseStatus
		expectedSchedulerStatus api.HealthResponseSchedulerStatus
		expectedDatabaseStatus  api.HealthResponseDatabaseStatus
		expectedRedisStatus     api.HealthResponseRedisStatus
		expectedCBState         api.HealthResponseCircuitBreakerState
	}{
		{
			name:  "scheduler stopped is still healthy",
			cache: stubPinger{},
			setupMocks: func(repo *mocks.MockRepository, scheduler *servicemocks.MockSchedulerService, dispatch *servicemocks.MockDispatchService) {
				scheduler.EXPECT().IsRunning().Return(false)
				repo.EXPECT().Ping().Return(nil)
				dispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Closed, uint32(50), uint32(10))
			},
			expectedStatus:          api.Healthy,
			expectedSchedulerStatus: api.HealthResponseSchedulerStatusStopped,
			expectedDatabaseStatus:  api.HealthResponseDatabaseStatusConnected,
			expectedRedisStatus:     api.HealthResponseRedisStatusConnected,
			expectedCBState:         api.Closed,
		},
		{
			name:  "database disconnected",
			cache: stubPinger{},
			setupMocks: func(repo *mocks.MockRepository, scheduler *servicemocks.MockSchedulerService, dispatch *servicemocks.MockDispatchService) {
				scheduler.EXPECT().IsRunning().Return(true)
				repo.EXPECT().Ping().Return(errors.New("connection failed"))
				dispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Closed, uint32(0), uint32(0))
			},
			expectedStatus:          api.Unhealthy,
			expectedSchedulerStatus: api.HealthResponseSchedulerStatusRunning,
			expectedDatabaseStatus:  api.HealthResponseDatabaseStatusDisconnected,
			expectedRedisStatus:     api.HealthResponseRedisStatusConnected,
			expectedCBState:         api.Closed,
		},
		{
			name:  "redis unreachable",
			cache: stubPinger{err: errors.New("dial tcp: connection refused")},
			setupMocks: func(repo *mocks.MockRepository, scheduler *servicemocks.MockSchedulerService, dispatch *servicemocks.MockDispatchService) {
				scheduler.EXPECT().IsRunning().Return(true)
				repo.EXPECT().Ping().Return(nil)
				dispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Closed, uint32(0), uint32(0))
			},
			expectedStatus:          api.Unhealthy,
			expectedSchedulerStatus: api.HealthResponseSchedulerStatusRunning,
			expectedDatabaseStatus:  api.HealthResponseDatabaseStatusConnected,
			expectedRedisStatus:     api.HealthResponseRedisStatusDisconnected,
			expectedCBState:         api.Closed,
		},
		{
			name:  "redis not configured",
			cache: nil,
			setupMocks: func(repo *mocks.MockRepository, scheduler *servicemocks.MockSchedulerService, dispatch *servicemocks.MockDispatchService) {
				scheduler.EXPECT().IsRunning().Return(false)
				repo.EXPECT().Ping().Return(nil)
				dispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Closed, uint32(0), uint32(0))
			},
			expectedStatus:          api.Unhealthy,
			expectedSchedulerStatus: api.HealthResponseSchedulerStatusStopped,
			expectedDatabaseStatus:  api.HealthResponseDatabaseStatusConnected,
			expectedRedisStatus:     api.HealthResponseRedisStatusDisconnected,
			expectedCBState:         api.Closed,
		},
		{
			name:  "circuit breaker open",
			cache: stubPinger{},
			setupMocks: func(repo *mocks.MockRepository, scheduler *servicemocks.MockSchedulerService, dispatch *servicemocks.MockDispatchService) {
				scheduler.EXPECT().IsRunning().Return(true)
				repo.EXPECT().Ping().Return(nil)
				dispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Open, uint32(100), uint32(60))
			},
			expectedStatus:          api.Degraded,
			expectedSchedulerStatus: api.HealthResponseSchedulerStatusRunning,
			expectedDatabaseStatus:  api.HealthResponseDatabaseStatusConnected,
			expectedRedisStatus:     api.HealthResponseRedisStatusConnected,
			expectedCBState:         api.Open,
		},
		{
			name:  "everything failing",
			cache: stubPinger{err: errors.New("timeout")},
			setupMocks: func(repo *mocks.MockRepository, scheduler *servicemocks.MockSchedulerService, dispatch *servicemocks.MockDispatchService) {
				scheduler.EXPECT().IsRunning().Return(false)
				repo.EXPECT().Ping().Return(errors.New("db error"))
				dispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Open, uint32(1000), uint32(999))
			},
			expectedStatus:          api.Unhealthy,
			expectedSchedulerStatus: api.HealthResponseSchedulerStatusStopped,
			expectedDatabaseStatus:  api.HealthResponseDatabaseStatusDisconnected,
			expectedRedisStatus:     api.HealthResponseRedisStatusDisconnected,
			expectedCBState:         api.Open,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockRepo := mocks.NewMockRepository(ctrl)
			mockScheduler := servicemocks.NewMockSchedulerService(ctrl)
			mockDispatch := servicemocks.NewMockDispatchService(ctrl)

			tt.setupMocks(mockRepo, mockScheduler, mockDispatch)

			healthService := service.NewHealthService(mockRepo, tt.cache, mockScheduler, mockDispatch)

			status := healthService.GetHealth()

			require.NotNil(t, status)
			assert.Equal(t, tt.expectedStatus, status.Status)
			assert.Equal(t, tt.expectedSchedulerStatus, status.SchedulerStatus)
			assert.Equal(t, tt.expectedDatabaseStatus, status.DatabaseStatus)
			assert.Equal(t, tt.expectedRedisStatus, status.RedisStatus)
			assert.Equal(t, tt.expectedCBState, status.CircuitBreakerState)
		})
	}
}

func TestHealthService_CircuitBreakerStatusFormatting(t *testing.T) {
	tests := []struct {
		name     string
		requests uint32
		failures uint32
		want     string
	}{
		{name: "no requests", want: "No requests yet"},
		{name: "no failures", requests: 10, want: "Requests: 10, Failures: 0 (0.0%)"},
		{name: "partial failures", requests: 3, failures: 1, want: "Requests: 3, Failures: 1 (33.3%)"},
		{name: "all failures", requests: 4, failures: 4, want: "Requests: 4, Failures: 4 (100.0%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			mockRepo := mocks.NewMockRepository(ctrl)
			mockScheduler := servicemocks.NewMockSchedulerService(ctrl)
			mockDispatch := servicemocks.NewMockDispatchService(ctrl)

			mockScheduler.EXPECT().IsRunning().Return(true)
			mockRepo.EXPECT().Ping().Return(nil)
			mockDispatch.EXPECT().GetCircuitBreakerStatus().Return(api.Closed, tt.requests, tt.failures)

			status := service.NewHealthService(mockRepo, stubPinger{}, mockScheduler, mockDispatch).GetHealth()
			assert.Equal(t, tt.want, status.CircuitBreakerStatus)
		})
	}
}
