package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives retry and breaker events for one dependency.
type Observer interface {
	ObserveRetry(dependency, operation string)
	ObserveBreakerState(dependency, operation, state string)
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// Executor guards calls to one outbound dependency with a shared throttle,
// retries and a circuit breaker per operation.
type Executor struct {
	policy   Policy
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy, opts ...Option) *Executor {
	policy = policy.normalize()
	e := &Executor{
		policy:   policy,
		logger:   slog.Default(),
		sleep:    sleepContext,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	if policy.Throttle.PerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(policy.Throttle.PerSecond), policy.Throttle.Burst)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Dependency() string { return e.policy.Dependency }

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s operation callback is nil", e.policy.Dependency)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if e.policy.Breaker.Disabled {
		return e.attempt(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) attempt(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	retry := e.policy.Retry
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return domain.WrapError(domain.ErrTemporary, e.policy.Dependency+" "+operation+" throttled", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if n >= retry.MaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := retry.backoff(n, RetryAfter(err))
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return err
		}
		e.logger.Warn("retry_attempt",
			"dependency", e.policy.Dependency,
			"operation", operation,
			"attempt", n,
			"max_attempts", retry.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if e.observer != nil {
			e.observer.ObserveRetry(e.policy.Dependency, operation)
		}
		if e.sleep(ctx, wait) != nil {
			return err
		}
	}
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        e.policy.Dependency + "." + operation,
		MaxRequests: bp.HalfOpenMaxCalls,
		Timeout:     bp.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bp.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bp.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
			if e.observer != nil {
				e.observer.ObserveBreakerState(e.policy.Dependency, operation, to.String())
			}
		},
	})
	e.breakers[operation] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
