// Package service provides business logic implementation for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/channel"
	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/gateway"
	"github.com/popeskul/insdr-dispatcher/internal/payload"
)

var ErrGatewayUnavailable = errors.New("gateway unavailable")

// errGatewayReply carries an unavailable gateway reply through the breaker.
var errGatewayReply = errors.New("gateway replied unavailable")

type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

var breakerStates = map[gobreaker.State]api.HealthResponseCircuitBreakerState{
	gobreaker.StateClosed:   api.Closed,
	gobreaker.StateHalfOpen: api.HalfOpen,
	gobreaker.StateOpen:     api.Open,
}

// NewCircuitBreaker trips once at least ConsecutiveFails requests were seen
// in the interval and the failure ratio reaches FailureRatio.
func NewCircuitBreaker(cfg *config.CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < cfg.ConsecutiveFails {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		// Transport trouble and unavailable replies trip the breaker. A
		// request we could not route never reached the gateway.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, channel.ErrUnsupportedChannel) ||
				errors.Is(err, gateway.ErrUnexpectedParams)
		},
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Execute runs fn through the breaker. A cancelled ctx fails fast without
// counting against the gateway.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := cb.cb.Execute(func() (any, error) {
		return nil, fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		cb.logger.Warn("Circuit breaker is open, request blocked")
		return fmt.Errorf("%w: circuit breaker is open", ErrGatewayUnavailable)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		cb.logger.Warn("Circuit breaker is half-open, trial request limit reached")
		return fmt.Errorf("%w: too many requests", ErrGatewayUnavailable)
	default:
		return err
	}
}

func (cb *CircuitBreaker) GetState() api.HealthResponseCircuitBreakerState {
	if state, ok := breakerStates[cb.cb.State()]; ok {
		return state
	}
	return api.Closed
}

// GetCounts returns requests and failures in the current interval.
func (cb *CircuitBreaker) GetCounts() (requests, failures uint32) {
	counts := cb.cb.Counts()
	return counts.Requests, counts.TotalFailures
}

// Guard wraps next so every send goes through the breaker.
func (cb *CircuitBreaker) Guard(next Sender) Sender {
	return &guardedSender{next: next, cb: cb}
}

type guardedSender struct {
	next Sender
	cb   *CircuitBreaker
}

// Send counts transport errors and unavailable replies (5xx, 429) as
// breaker failures. An unavailable reply still reaches the caller as an
// unsuccessful Result.
func (s *guardedSender) Send(ctx context.Context, req *payload.Request) (*gateway.Result, error) {
	var result *gateway.Result
	err := s.cb.Execute(ctx, func() error {
		var err error
		result, err = s.next.Send(ctx, req)
		if err == nil && result != nil && !result.Success && result.Unavailable() {
			return errGatewayReply
		}
		return err
	})
	if errors.Is(err, errGatewayReply) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
