package retrycore

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

// circuitBreaker is a single per-service-key breaker. All access goes
// through breakerTable's mutex; the breaker itself holds no lock.
type circuitBreaker struct {
	state            BreakerState
	consecutiveFails int
	openedAt         time.Time
	failureThreshold int
	recoveryTimeout  time.Duration
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		state:            BreakerClosed,
		failureThreshold: defaultFailureThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
	}
}

// allow reports whether a call may proceed right now. A transition from
// Open to HalfOpen happens here, on the next call after recoveryTimeout has
// elapsed.
func (b *circuitBreaker) allow(now time.Time) bool {
	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *circuitBreaker) onSuccess() {
	b.state = BreakerClosed
	b.consecutiveFails = 0
}

func (b *circuitBreaker) onFailure(now time.Time) {
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = now
		b.consecutiveFails = b.failureThreshold
	default:
		b.consecutiveFails++
		if b.consecutiveFails >= b.failureThreshold {
			b.state = BreakerOpen
			b.openedAt = now
		}
	}
}

// breakerTable is the process-global, mutex-guarded map of circuit breakers
// keyed by service.
type breakerTable struct {
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
}

func newBreakerTable() *breakerTable {
	return &breakerTable{breakers: map[string]*circuitBreaker{}}
}

// Allow reports whether a call against key may proceed.
func (t *breakerTable) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.breakerLocked(key)
	return b.allow(time.Now())
}

func (t *breakerTable) breakerLocked(key string) *circuitBreaker {
	b, ok := t.breakers[key]
	if !ok {
		b = newCircuitBreaker()
		t.breakers[key] = b
	}
	return b
}

func (t *breakerTable) RecordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakerLocked(key).onSuccess()
}

func (t *breakerTable) RecordFailure(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.breakerLocked(key).onFailure(time.Now())
}

// State returns the current state of the breaker for key, for
// status/observability callers.
func (t *breakerTable) State(key string) BreakerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.breakerLocked(key).state
}
