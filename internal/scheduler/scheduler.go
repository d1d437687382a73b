package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic unit of work, typically a dispatch cycle.
type Task func(context.Context) error

// Scheduler runs a Task at a fixed interval, once immediately on start.
type Scheduler struct {
	logger      *zap.Logger
	interval    time.Duration
	taskTimeout time.Duration
	task        Task
	cancel      context.CancelFunc
	doneCh      chan struct{}
	isRunning   bool
	mu          sync.RWMutex
}

type Option func(*Scheduler)

// WithTaskTimeout bounds every task run. The default is the interval.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.taskTimeout = d
	}
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *zap.Logger, interval time.Duration, task Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:      logger,
		interval:    interval,
		taskTimeout: interval,
		task:        task,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler. The loop ends when ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrSchedulerAlreadyRunning
	}
	if s.interval <= 0 {
		return ErrInvalidInterval
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.isRunning = true
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go s.run(runCtx, s.doneCh)

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the scheduler and waits for an in-flight task to return. The
// task sees its context cancelled.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	cancel, done := s.cancel, s.doneCh
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.executeTask(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context canceled")
			return
		case <-ticker.C:
			s.executeTask(ctx)
		}
	}
}

func (s *Scheduler) executeTask(ctx context.Context) {
	s.logger.Debug("Executing scheduled task")

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	if err := s.task(taskCtx); err != nil {
		s.logger.Error("Task execution failed", zap.Error(err))
		return
	}
	s.logger.Debug("Task execution completed")
}
