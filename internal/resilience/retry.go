package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"musicgen/internal/domain"
	"musicgen/internal/infra"
)

// Policy bounds the retry loop. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultPolicy is used for provider submissions.
var DefaultPolicy = Policy{
	MaxAttempts: 4,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
	Multiplier:  2,
}

// Backoff returns the un-jittered delay before retry n (0 based):
// min(BaseDelay * Multiplier^n, MaxDelay).
func (p Policy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Options configures an Executor.
type Options struct {
	Breaker *Breaker
	Logger  *infra.Logger
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a value in [0, 1). Defaults to math/rand.
	Jitter func() float64
	// OnAttempt observes every underlying call outcome.
	OnAttempt func(op string, err error)
}

// Executor runs operations with retry, backoff and a shared circuit breaker.
// It is safe for concurrent use.
type Executor struct {
	breaker   *Breaker
	logger    *infra.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() float64
	onAttempt func(op string, err error)
}

func NewExecutor(opts Options) *Executor {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewBreaker(BreakerOptions{})
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	return &Executor{
		breaker:   breaker,
		logger:    logger,
		sleep:     sleep,
		jitter:    jitter,
		onAttempt: opts.OnAttempt,
	}
}

// Breaker exposes the shared breaker.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Delay returns the jittered delay before retry n, uniformly spread over
// ±25% of Policy.Backoff(n).
func (e *Executor) Delay(p Policy, n int) time.Duration {
	base := float64(p.Backoff(n))
	factor := 0.75 + e.jitter()*0.5
	return time.Duration(base * factor)
}

// Execute calls op until it succeeds, fails terminally, or the policy's
// attempts are exhausted. Terminal provider errors are wrapped with
// domain.ErrProviderTerminal and exhausted retries with
// domain.ErrProviderTransient.
func Execute[T any](ctx context.Context, e *Executor, op string, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := e.Delay(p, attempt-1)
			e.logger.Debug().
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("resilience: retrying")
			if err := e.sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
		if err := e.breaker.Allow(); err != nil {
			e.observe(op, err)
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		result, err := fn(ctx)
		e.observe(op, err)
		if err == nil {
			e.breaker.Success()
			return result, nil
		}
		if countsAgainstBreaker(ctx, err) {
			e.breaker.Failure()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, err
		}
		if IsTerminal(err) {
			e.logger.Warn().Str("op", op).Err(err).Msg("resilience: terminal error, not retrying")
			return zero, fmt.Errorf("%w: %w", domain.ErrProviderTerminal, err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %s failed after %d attempts: %w", domain.ErrProviderTransient, op, attempts, lastErr)
}

func (e *Executor) observe(op string, err error) {
	if e.onAttempt != nil {
		e.onAttempt(op, err)
	}
}

// countsAgainstBreaker excludes failures caused by the caller rather than by
// the dependency: cancellation and request-specific 400/413 rejections.
func countsAgainstBreaker(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
			return false
		}
	}
	return true
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
