// Package resilience provides reliability patterns for outbound payment
// gateway calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen rejects calls while the circuit is open. Callers treat it as
// retryable: the booking stays PENDING and payment can be re-initiated once
// the cool-off passes.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type circuitState int

const (
	closed circuitState = iota
	open
	halfOpen
)

// Breaker trips after maxFailures consecutive failures and rejects calls for
// a cool-off period. The first call after the cool-off runs as a lone probe;
// concurrent calls keep getting ErrCircuitOpen until the probe settles, so a
// recovering gateway sees one request instead of the backed-up herd.
type Breaker struct {
	mu        sync.Mutex
	state     circuitState
	failures  int
	probing   bool
	trippedAt time.Time

	maxFailures int
	coolOff     time.Duration
	clock       func() time.Time
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and admits a probe after coolOff.
func NewBreaker(maxFailures int, coolOff time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		coolOff:     coolOff,
		clock:       time.Now,
	}
}

// Execute runs fn under the breaker's admission policy and records its
// outcome. The lock is not held during fn.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.settle(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case closed:
		return true
	case open:
		if b.clock().Sub(b.trippedAt) < b.coolOff {
			return false
		}
		b.state = halfOpen
		b.probing = true
		return true
	default: // halfOpen: one probe at a time
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err != nil {
		b.failures++
		if b.state == halfOpen || b.failures >= b.maxFailures {
			b.state = open
			b.trippedAt = b.clock()
		}
		return
	}
	b.failures = 0
	b.state = closed
}
