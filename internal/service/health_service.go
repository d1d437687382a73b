package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports cache connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthService struct {
	repo      repository.Repository
	cache     Pinger
	scheduler SchedulerService
	dispatch  DispatchService
}

func NewHealthService(
	repo repository.Repository,
	cache Pinger,
	scheduler SchedulerService,
	dispatch DispatchService,
) HealthService {
	return &healthService{
		repo:      repo,
		cache:     cache,
		scheduler: scheduler,
		dispatch:  dispatch,
	}
}

// GetHealth checks the database and cache in parallel. Losing either makes
// the service unhealthy; an open breaker only degrades it.
func (s *healthService) GetHealth() *HealthStatus {
	status := &HealthStatus{
		Status:          api.Healthy,
		SchedulerStatus: api.HealthResponseSchedulerStatusStopped,
		DatabaseStatus:  api.HealthResponseDatabaseStatusDisconnected,
		RedisStatus:     api.HealthResponseRedisStatusDisconnected,
	}
	if s.scheduler.IsRunning() {
		status.SchedulerStatus = api.HealthResponseSchedulerStatusRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if s.repo.Ping() == nil {
			status.DatabaseStatus = api.HealthResponseDatabaseStatusConnected
		}
		return nil
	})
	g.Go(func() error {
		if s.cache != nil && s.cache.Ping(ctx) == nil {
			status.RedisStatus = api.HealthResponseRedisStatusConnected
		}
		return nil
	})
	_ = g.Wait()

	state, requests, failures := s.dispatch.GetCircuitBreakerStatus()
	status.CircuitBreakerState = state
	status.CircuitBreakerStatus = breakerSummary(requests, failures)

	switch {
	case status.DatabaseStatus != api.HealthResponseDatabaseStatusConnected,
		status.RedisStatus != api.HealthResponseRedisStatusConnected:
		status.Status = api.Unhealthy
	case state == api.Open:
		status.Status = api.Degraded
	}

	return status
}

func breakerSummary(requests, failures uint32) string {
	if requests == 0 {
		return "No requests yet"
	}
	rate := float64(failures) / float64(requests) * 100
	return fmt.Sprintf("Requests: %d, Failures: %d (%.1f%%)", requests, failures, rate)
}
