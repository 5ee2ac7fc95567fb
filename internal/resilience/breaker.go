package resilience

import (
	"fmt"
	"sync"
	"time"

	"musicgen/internal/domain"
)

// ErrCircuitOpen is returned without invoking the operation while the breaker
// is open.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", domain.ErrServiceUnavailable)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 5 * time.Minute
)

// Breaker counts consecutive failures across every caller sharing it. Once the
// count reaches the threshold every Allow call fails fast until the cool-down
// elapses, after which the breaker resets and calls resume.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
	now       func() time.Time
	onChange  func(open bool)
}

// BreakerOptions configures a Breaker. Zero values select the defaults.
type BreakerOptions struct {
	Threshold int
	Cooldown  time.Duration
	Now       func() time.Time
	// OnStateChange is called (outside the lock) when the breaker opens or resets.
	OnStateChange func(open bool)
}

func NewBreaker(opts BreakerOptions) *Breaker {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		onChange:  opts.OnStateChange,
	}
}

// Allow reports ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	if b.openUntil.IsZero() {
		b.mu.Unlock()
		return nil
	}
	if b.now().Before(b.openUntil) {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.failures = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()
	b.notify(false)
	return nil
}

// Success resets the consecutive failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Failure records one failed call and opens the breaker at the threshold.
func (b *Breaker) Failure() {
	b.mu.Lock()
	if !b.openUntil.IsZero() {
		b.mu.Unlock()
		return
	}
	b.failures++
	opened := false
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
		opened = true
	}
	b.mu.Unlock()
	if opened {
		b.notify(true)
	}
}

// Open reports whether calls are currently refused.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero() && b.now().Before(b.openUntil)
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) notify(open bool) {
	if b.onChange != nil {
		b.onChange(open)
	}
}
