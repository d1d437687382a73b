package service

import (
	"context"
	"time"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/gateway"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/payload"
)

type DispatchService interface {
	RunDispatchCycle(ctx context.Context) (*CycleResult, error)
	GetCircuitBreakerStatus() (state api.HealthResponseCircuitBreakerState, requests uint32, failures uint32)
}

type MessageService interface {
	GetMessages(ctx context.Context, status *models.MessageStatus, page, limit int) (*api.MessageListResponse, error)
}

type BalanceService interface {
	// AdvertisingBalance never returns a positive balance together with an
	// error.
	AdvertisingBalance(ctx context.Context, accountID string) (int64, error)
	GetBalance(ctx context.Context, accountID string) (*api.BalanceResponse, error)
}

type OutcomeRecorder interface {
	RecordSuccess(ctx context.Context, msg *models.ScheduledMessage, ch models.ChannelType, cost int64, providerMessageID string) error
	RecordFailure(ctx context.Context, msg *models.ScheduledMessage, reason string) error
}

type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
}

type HealthService interface {
	GetHealth() *HealthStatus
}

// Sender delivers a built request to the gateway.
type Sender interface {
	Send(ctx context.Context, req *payload.Request) (*gateway.Result, error)
}

type ChannelResolver interface {
	Resolve(msg *models.ScheduledMessage) (models.ChannelType, error)
}

type PayloadBuilder interface {
	Build(ctx context.Context, ch models.ChannelType, msg *models.ScheduledMessage, opts ...payload.Option) (*payload.Request, error)
}

type CostLookup interface {
	Cost(ch models.ChannelType) (int64, error)
}

// SentCache coordinates dispatch across cycles and instances.
type SentCache interface {
	AcquireCycleLock(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
	RememberSent(ctx context.Context, messageID, providerMessageID string, ttl time.Duration) error
	LookupSent(ctx context.Context, messageID string) (string, bool, error)
	ForgetSent(ctx context.Context, messageID string) error
}
