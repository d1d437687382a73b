package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/scheduler"
)

type schedulerService struct {
	scheduler *scheduler.Scheduler
	dispatch  DispatchService
	logger    *zap.Logger
}

// NewSchedulerService builds the optional in-process trigger that runs a
// dispatch cycle every interval.
func NewSchedulerService(
	cfg *config.Config,
	dispatch DispatchService,
	logger *zap.Logger,
) SchedulerService {
	interval := time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute

	svc := &schedulerService{
		dispatch: dispatch,
		logger:   logger,
	}

	svc.scheduler = scheduler.NewScheduler(logger, interval, svc.executeDispatchTask)
	return svc
}

func (s *schedulerService) Start() error {
	ctx := context.Background()
	return s.scheduler.Start(ctx)
}

func (s *schedulerService) Stop() error {
	return s.scheduler.Stop()
}

func (s *schedulerService) IsRunning() bool {
	return s.scheduler.IsRunning()
}

func (s *schedulerService) executeDispatchTask(ctx context.Context) error {
	result, err := s.dispatch.RunDispatchCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		s.logger.Info("Skipping scheduled dispatch, another cycle is running")
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("Scheduled dispatch completed",
		zap.Int("checked", result.Checked),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return nil
}
