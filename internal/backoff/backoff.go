// Package backoff computes retry delays for the channel poller.
//
// A [Policy] is a pure function of the number of consecutive failures, which
// keeps delays deterministic under test. A [Controller] adds the failure
// counter and optional jitter on top of a policy.
package backoff

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultBase   = 500 * time.Millisecond
	DefaultMax    = 30 * time.Second
	DefaultFactor = 2.0
)

// Policy describes an exponential backoff capped at Max.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64

	// Jitter spreads each delay by up to ±Jitter×delay. Zero disables it.
	Jitter float64
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{Base: DefaultBase, Max: DefaultMax, Factor: DefaultFactor}
}

func (p Policy) String() string {
	return fmt.Sprintf("%v..%v x%.1f ±%.0f%%", p.Base, p.Max, p.factor(), p.Jitter*100)
}

// Validate reports whether the policy can produce sane delays.
func (p Policy) Validate() error {
	if p.Base <= 0 {
		return fmt.Errorf("backoff base must be positive, got %s", p.Base)
	}
	if p.Max < p.Base {
		return fmt.Errorf("backoff max (%s) must not be less than base (%s)", p.Max, p.Base)
	}
	if p.Factor != 0 && p.Factor < 1 {
		return fmt.Errorf("backoff factor must be at least 1, got %v", p.Factor)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("backoff jitter must be in [0, 1), got %v", p.Jitter)
	}
	return nil
}

func (p Policy) factor() float64 {
	if p.Factor == 0 {
		return DefaultFactor
	}
	return p.Factor
}

// DelayAfter returns the delay after failedAttempts consecutive failures,
// without jitter. It panics on non-positive input, which is a caller bug.
func (p Policy) DelayAfter(failedAttempts int) time.Duration {
	if failedAttempts <= 0 {
		panic("failed attempts must be positive")
	}

	factor := p.factor()
	delay := p.Base
	for i := 1; i < failedAttempts && delay < p.Max; i++ {
		// compared as float so a huge factor cannot overflow the duration
		next := factor*float64(delay) + 0.5
		if next >= float64(p.Max) {
			delay = p.Max
			break
		}
		delay = time.Duration(next)
	}
	if delay > p.Max {
		delay = p.Max
	}
	return delay
}

// Controller tracks consecutive failures for one poll session.
//
// Controller is safe for concurrent use, although a session only touches it
// from its own goroutine.
type Controller struct {
	policy Policy

	mu       sync.Mutex
	failures int
	rnd      *rand.Rand
}

// NewController creates a [Controller] for policy. If rnd is nil and the
// policy has jitter, a time-seeded source is used.
func NewController(policy Policy, rnd *rand.Rand) *Controller {
	if rnd == nil && policy.Jitter > 0 {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Controller{policy: policy, rnd: rnd}
}

// Next records a failure and returns how long to wait before retrying.
func (c *Controller) Next() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	delay := c.policy.DelayAfter(c.failures)
	if c.policy.Jitter > 0 && c.rnd != nil {
		spread := (c.rnd.Float64()*2 - 1) * c.policy.Jitter
		jittered := float64(delay) * (1 + spread)
		switch {
		case jittered >= float64(c.policy.Max):
			delay = c.policy.Max
		case jittered < 0:
			delay = 0
		default:
			delay = time.Duration(jittered)
		}
	}
	return delay
}

// Reset clears the failure count after a successful cycle.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

// Failures returns the number of consecutive failures recorded so far.
func (c *Controller) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
