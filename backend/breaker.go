package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reqtrace/core"
)

// BreakerState is the state of the upstream circuit breaker.
type BreakerState string

const (
	// BreakerClosed lets requests through
	BreakerClosed BreakerState = "closed"
	// BreakerOpen fails requests at once
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen lets one probe request through
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned while the backend is considered unavailable.
var ErrBreakerOpen = errors.New("backend circuit breaker is open")

// Breaker defaults
const (
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// breaker opens after maxFailures consecutive transient failures and lets a
// single probe through once cooldown has elapsed.
type breaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = DefaultBreakerFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		state:       BreakerClosed,
	}
}

// allow reports whether a request may be sent.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return b.openError()
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return b.openError()
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *breaker) openError() error {
	return fmt.Errorf("%w: %w (retry after %s)", core.ErrUpstream, ErrBreakerOpen, b.cooldown)
}

// record feeds the outcome of a request back. Permanent failures such as 404
// prove the backend is reachable and count as successes.
func (b *breaker) record(err error) (oldState, newState BreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState = b.state
	b.probing = false

	if errors.Is(err, context.Canceled) {
		if b.state == BreakerHalfOpen {
			b.state = BreakerOpen
		}
		return oldState, b.state
	}
	if err == nil || ClassifyError(err) == ErrorTypePermanent {
		b.state = BreakerClosed
		b.failures = 0
		return oldState, b.state
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
	return oldState, b.state
}

func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
