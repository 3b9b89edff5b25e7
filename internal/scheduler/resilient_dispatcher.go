package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/circuitbreaker"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/retry"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
)

// ResilienceConfig configures ResilientDispatcher
type ResilienceConfig struct {
	Retries         int
	Backoff         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ResilientDispatcher retries transient dispatch failures and stops
// dispatching for a while once the broker keeps failing. While the breaker
// is open every dispatch fails at once, so the poller marks those runs failed
// instead of waiting out DispatchTimeout on each
type ResilientDispatcher struct {
	inner   Dispatcher
	policy  retry.Policy
	breaker *circuitbreaker.Breaker
	log     *logger.Logger
}

// NewResilientDispatcher wraps inner
func NewResilientDispatcher(inner Dispatcher, cfg ResilienceConfig, log *logger.Logger) *ResilientDispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	d := &ResilientDispatcher{inner: inner, log: log}

	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	d.policy = retry.Policy{
		MaxAttempts: cfg.Retries + 1,
		Backoff:     retry.NewExponentialBackoff(backoff, 10*backoff, true),
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("Dispatch failed, retrying",
				logger.IntField("attempt", attempt),
				logger.Field("delay", delay),
				logger.ErrorField(err),
			)
		},
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	if cfg.BreakerFailures > 0 {
		breakerCfg.MaxFailures = cfg.BreakerFailures
	}
	if cfg.BreakerCooldown > 0 {
		breakerCfg.Cooldown = cfg.BreakerCooldown
	}
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Dispatch circuit changed state",
			logger.StringField("from", from.String()),
			logger.StringField("to", to.String()),
		)
	}
	d.breaker = circuitbreaker.New(breakerCfg)
	return d
}

func (d *ResilientDispatcher) Dispatch(ctx context.Context, trigger *daginfo.Trigger) error {
	err := d.breaker.Execute(func() error {
		return retry.Do(ctx, d.policy, func(ctx context.Context) error {
			return d.inner.Dispatch(ctx, trigger)
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("dispatch of run %s skipped: %w", trigger.RunID, err)
	}
	return err
}

// State returns the breaker state
func (d *ResilientDispatcher) State() circuitbreaker.State {
	return d.breaker.State()
}
