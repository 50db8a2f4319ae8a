package circuitbreaker

import (
	"sync"
	"time"
)

// State is the position of a breaker in its lifecycle.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // dispatches rejected
	StateHalfOpen              // single probe allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults applied when a breaker is built with non-positive settings.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// Breaker tracks dispatch failures for a single backend and rejects
// traffic once they cross the threshold. After the reset timeout one
// probe dispatch is let through; its outcome decides whether the breaker
// closes again or re-opens.
type Breaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	lastFailure      time.Time
	failureThreshold int
	resetTimeout     time.Duration
}

func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if timeout <= 0 {
		timeout = DefaultResetTimeout
	}

	return &Breaker{
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     timeout,
	}
}

// Allow reports whether a dispatch may proceed. An open breaker moves to
// half-open once the reset timeout has passed, admitting one probe.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) >= b.resetTimeout {
			b.state = StateHalfOpen
			return true
		}

		return false
	default:
		return true
	}
}

// RecordFailure counts a failed dispatch. Crossing the threshold, or any
// failure while half-open, opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
		b.state = StateOpen
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures = 0
	b.state = StateClosed
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}
