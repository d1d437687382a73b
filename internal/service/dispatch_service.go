package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

const DefaultBatchSize = 100

type DispatchOptions struct {
	BatchSize    int
	Workers      int
	CycleLockTTL time.Duration
	SentCacheTTL time.Duration
	// ClaimTTL bounds how long a cycle holds a message it is sending.
	ClaimTTL time.Duration
}

// DispatchDeps are the collaborators of a dispatch cycle. Cache may be nil,
// which disables the cycle lock and the sent-message cache.
type DispatchDeps struct {
	Repo     repository.Repository
	Resolver ChannelResolver
	Builder  PayloadBuilder
	Sender   Sender
	Breaker  *CircuitBreaker
	Costs    CostLookup
	Balances BalanceService
	Recorder OutcomeRecorder
	Cache    SentCache
}

type dispatchService struct {
	DispatchDeps
	opts   DispatchOptions
	locks  *accountLocks
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatchService(deps DispatchDeps, opts DispatchOptions, logger *zap.Logger) DispatchService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.CycleLockTTL <= 0 {
		opts.CycleLockTTL = 5 * time.Minute
	}
	if opts.SentCacheTTL <= 0 {
		opts.SentCacheTTL = 24 * time.Hour
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = time.Hour
	}

	return &dispatchService{
		DispatchDeps: deps,
		opts:         opts,
		locks:        newAccountLocks(),
		logger:       logger,
		now:          time.Now,
	}
}

type outcome struct {
	sent    bool
	skipped bool
	err     string
}

// RunDispatchCycle processes up to one batch of due messages. Only
// cycle-level problems are returned as errors; every per-message problem
// ends as a failed message and an entry in the result.
func (s *dispatchService) RunDispatchCycle(ctx context.Context) (*CycleResult, error) {
	if s.Cache != nil {
		release, ok, err := s.Cache.AcquireCycleLock(ctx, s.opts.CycleLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
		}
		if !ok {
			return nil, ErrCycleInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release cycle lock", zap.Error(err))
			}
		}()
	}

	messages, err := s.Repo.Message().GetDueMessages(ctx, s.now(), s.opts.BatchSize)
	if err != nil {
		s.logger.Error("Failed to get due messages", zap.Error(err))
		return nil, fmt.Errorf("failed to get due messages: %w", err)
	}

	result := &CycleResult{Errors: []string{}}
	if len(messages) == 0 {
		s.logger.Info("No due messages to dispatch")
		return result, nil
	}

	owner := uuid.NewString()
	s.logger.Info("Starting dispatch cycle",
		zap.String("cycle_id", owner),
		zap.Int("count", len(messages)),
		zap.Int("workers", s.opts.Workers))

	var mu sync.Mutex
	collect := func(msg *models.ScheduledMessage, o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case o.skipped:
			result.Skipped++
		case o.sent:
			result.Checked++
			result.Sent++
		default:
			result.Checked++
			result.Failed++
		}
		if o.err != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("message %s: %s", msg.ID, o.err))
		}
	}

	if s.opts.Workers == 1 {
		for _, msg := range messages {
			if ctx.Err() != nil {
				break
			}
			collect(msg, s.dispatchOne(ctx, msg, owner))
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(s.opts.Workers)
		for _, msg := range messages {
			if ctx.Err() != nil {
				break
			}
			msg := msg
			g.Go(func() error {
				collect(msg, s.dispatchOne(ctx, msg, owner))
				return nil
			})
		}
		_ = g.Wait()
	}

	if left := len(messages) - result.Checked - result.Skipped; left > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("cycle cancelled: %d messages left pending", left))
	}

	s.logger.Info("Dispatch cycle finished",
		zap.Int("checked", result.Checked),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.String("circuit_breaker_state", string(s.breakerState())))

	return result, nil
}

// dispatchOne is the per-message failure boundary. Once claimed, a message
// runs to completion even if the cycle is cancelled.
func (s *dispatchService) dispatchOne(parent context.Context, msg *models.ScheduledMessage, owner string) (o outcome) {
	ctx := context.WithoutCancel(parent)

	if skip, ok := s.claim(ctx, msg, owner); !ok {
		return skip
	}
	defer func() {
		if !o.sent {
			s.release(ctx, msg.ID, owner)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic while dispatching message",
				zap.String("message_id", msg.ID),
				zap.Any("panic", r))
			o = s.fail(ctx, msg, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if providerID, found := s.lookupSent(ctx, msg.ID); found {
		return s.reconcile(ctx, msg, providerID)
	}

	ch, err := s.Resolver.Resolve(msg)
	if err != nil {
		return s.fail(ctx, msg, err.Error())
	}

	cost, err := s.Costs.Cost(ch)
	if err != nil {
		return s.fail(ctx, msg, err.Error())
	}

	unlock := s.locks.Lock(msg.AccountID)
	defer unlock()

	balance, err := s.Balances.AdvertisingBalance(ctx, msg.AccountID)
	if err != nil {
		return s.fail(ctx, msg, reasonBalanceUnavailable)
	}
	if balance < cost {
		return s.fail(ctx, msg, fmt.Sprintf("%s: balance %d, cost %d", reasonInsufficientFunds, balance, cost))
	}

	req, err := s.Builder.Build(ctx, ch, msg)
	if err != nil {
		return s.fail(ctx, msg, err.Error())
	}

	res, err := s.Sender.Send(ctx, req)
	if err != nil {
		return s.fail(ctx, msg, fmt.Sprintf("gateway error: %v", err))
	}
	if !res.Success {
		return s.fail(ctx, msg, res.Error)
	}

	s.rememberSent(ctx, msg.ID, res.ProviderMessageID)

	return s.succeed(ctx, msg, ch, cost, res.ProviderMessageID)
}

// claim leases msg to this cycle so no other cycle sends it. A message
// that cannot be claimed stays pending and untouched.
func (s *dispatchService) claim(ctx context.Context, msg *models.ScheduledMessage, owner string) (outcome, bool) {
	now := s.now()
	err := s.Repo.Message().Claim(ctx, msg.ID, owner, now, now.Add(s.opts.ClaimTTL))
	switch {
	case err == nil:
		return outcome{}, true
	case errors.Is(err, repository.ErrAlreadyClaimed):
		s.logger.Info("Message claimed by another cycle, skipping",
			zap.String("message_id", msg.ID),
			zap.String("cycle_id", owner))
		return outcome{skipped: true}, false
	default:
		s.logger.Error("Failed to claim message, leaving it pending",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return outcome{skipped: true, err: fmt.Sprintf("claim failed: %v", err)}, false
	}
}

func (s *dispatchService) release(ctx context.Context, messageID, owner string) {
	if err := s.Repo.Message().Release(ctx, messageID, owner); err != nil {
		s.logger.Warn("Failed to release message claim",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

// reconcile records a message the gateway accepted in an earlier cycle
// whose outcome never reached the database.
func (s *dispatchService) reconcile(ctx context.Context, msg *models.ScheduledMessage, providerID string) outcome {
	s.logger.Warn("Message already accepted by gateway, recording outcome without resend",
		zap.String("message_id", msg.ID),
		zap.String("provider_message_id", providerID))

	ch, err := s.Resolver.Resolve(msg)
	if err != nil {
		return s.reconcileFailed(msg, providerID, err)
	}
	cost, err := s.Costs.Cost(ch)
	if err != nil {
		return s.reconcileFailed(msg, providerID, err)
	}

	unlock := s.locks.Lock(msg.AccountID)
	defer unlock()

	return s.succeed(ctx, msg, ch, cost, providerID)
}

func (s *dispatchService) reconcileFailed(msg *models.ScheduledMessage, providerID string, err error) outcome {
	s.logger.Error("Cannot price message accepted by gateway, leaving it pending",
		zap.String("message_id", msg.ID),
		zap.String("provider_message_id", providerID),
		zap.Error(err))
	return outcome{err: fmt.Sprintf("sent but not recorded: %v", err)}
}

func (s *dispatchService) succeed(ctx context.Context, msg *models.ScheduledMessage, ch models.ChannelType, cost int64, providerID string) outcome {
	if err := s.Recorder.RecordSuccess(ctx, msg, ch, cost, providerID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Error("Message was finalised concurrently, debit rolled back",
				zap.String("message_id", msg.ID),
				zap.String("provider_message_id", providerID),
				zap.Error(err))
			s.forgetSent(ctx, msg.ID)
			return outcome{err: "sent but already finalised by another cycle"}
		}

		// The gateway accepted the message; the sent cache lets a later
		// cycle record it without sending again.
		s.logger.Error("Failed to record successful send, reconciliation needed",
			zap.String("message_id", msg.ID),
			zap.String("account_id", msg.AccountID),
			zap.String("channel", string(ch)),
			zap.Int64("cost", cost),
			zap.String("provider_message_id", providerID),
			zap.Error(err))
		return outcome{err: fmt.Sprintf("sent but not recorded: %v", err)}
	}

	s.forgetSent(ctx, msg.ID)

	s.logger.Info("Message sent",
		zap.String("message_id", msg.ID),
		zap.String("channel", string(ch)),
		zap.Int64("cost", cost),
		zap.String("provider_message_id", providerID))

	return outcome{sent: true}
}

func (s *dispatchService) fail(ctx context.Context, msg *models.ScheduledMessage, reason string) outcome {
	s.logger.Error("Failed to dispatch message",
		zap.String("message_id", msg.ID),
		zap.String("account_id", msg.AccountID),
		zap.String("reason", reason))

	if err := s.Recorder.RecordFailure(ctx, msg, reason); err != nil {
		s.logger.Error("Failed to record message failure",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return outcome{err: fmt.Sprintf("%s (not recorded: %v)", reason, err)}
	}

	return outcome{err: reason}
}

func (s *dispatchService) lookupSent(ctx context.Context, messageID string) (string, bool) {
	if s.Cache == nil {
		return "", false
	}
	providerID, found, err := s.Cache.LookupSent(ctx, messageID)
	if err != nil {
		s.logger.Warn("Failed to check sent cache", zap.String("message_id", messageID), zap.Error(err))
		return "", false
	}
	return providerID, found
}

func (s *dispatchService) rememberSent(ctx context.Context, messageID, providerID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.RememberSent(ctx, messageID, providerID, s.opts.SentCacheTTL); err != nil {
		s.logger.Warn("Failed to cache sent message", zap.String("message_id", messageID), zap.Error(err))
	}
}

func (s *dispatchService) forgetSent(ctx context.Context, messageID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.ForgetSent(ctx, messageID); err != nil {
		s.logger.Warn("Failed to clear sent cache", zap.String("message_id", messageID), zap.Error(err))
	}
}

func (s *dispatchService) breakerState() api.HealthResponseCircuitBreakerState {
	if s.Breaker == nil {
		return api.Closed
	}
	return s.Breaker.GetState()
}

func (s *dispatchService) GetCircuitBreakerStatus() (state api.HealthResponseCircuitBreakerState, requests uint32, failures uint32) {
	if s.Breaker == nil {
		return api.Closed, 0, 0
	}
	state = s.Breaker.GetState()
	requests, failures = s.Breaker.GetCounts()
	return
}
