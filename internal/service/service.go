package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/cache"
	"github.com/popeskul/insdr-dispatcher/internal/channel"
	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/events"
	"github.com/popeskul/insdr-dispatcher/internal/payload"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

type Service struct {
	Dispatch  DispatchService
	Message   MessageService
	Balance   BalanceService
	Scheduler SchedulerService
	Health    HealthService
}

// NewService wires the dispatcher. gateway is the raw gateway client; it is
// guarded by the circuit breaker here.
func NewService(
	cfg *config.Config,
	repo repository.Repository,
	store *cache.Store,
	gateway Sender,
	publisher events.Publisher,
	logger *zap.Logger,
) (*Service, error) {
	classify, err := channel.NewClassifier(cfg.Channel.Classifier, cfg.Channel.SMSMaxLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel classifier: %w", err)
	}

	costs, err := channel.NewCostTable(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost table: %w", err)
	}

	breaker := NewCircuitBreaker(&cfg.Gateway.CircuitBreaker, logger)
	balanceService := NewBalanceService(repo, logger)

	deps := DispatchDeps{
		Repo:     repo,
		Resolver: channel.NewResolver(classify),
		Builder:  payload.NewBuilder(repo.Account(), cfg.Gateway.Location()),
		Sender:   breaker.Guard(gateway),
		Breaker:  breaker,
		Costs:    costs,
		Balances: balanceService,
		Recorder: NewOutcomeRecorder(repo, publisher, logger),
	}
	var pinger Pinger
	if store != nil {
		deps.Cache = store
		pinger = store
	}

	dispatchService := NewDispatchService(deps, DispatchOptions{
		BatchSize:    cfg.Dispatch.BatchSize,
		Workers:      cfg.Dispatch.Workers,
		CycleLockTTL: cfg.Dispatch.LockTTL(),
		SentCacheTTL: cfg.Dispatch.CacheTTL(),
		ClaimTTL:     cfg.Dispatch.ClaimDuration(),
	}, logger)
	schedulerService := NewSchedulerService(cfg, dispatchService, logger)
	healthService := NewHealthService(repo, pinger, schedulerService, dispatchService)

	return &Service{
		Dispatch:  dispatchService,
		Message:   NewMessageService(repo),
		Balance:   balanceService,
		Scheduler: schedulerService,
		Health:    healthService,
	}, nil
}
