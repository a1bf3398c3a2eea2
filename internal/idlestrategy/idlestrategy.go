// Package idlestrategy implements the pluggable park/spin/sleep policy
// an AgentRunner consults when a duty cycle performed no work. Mirrors
// the backoff shape used throughout the teacher's background loops
// (asyncqueue worker polling, pool cleanup/health-check tickers):
// nothing clever, just a sleep the caller can swap out in tests.
package idlestrategy

import "time"

// IdleStrategy is invoked once per duty cycle with the work count that
// cycle produced. Implementations decide how to wait before the next
// cycle; a strategy must not block forever — callers that need
// cancellation select on their own stop channel around the call.
type IdleStrategy interface {
	Idle(workCount int)
}

// Sleeping is the default IdleStrategy: sleep a fixed duration whenever
// a cycle did no work, and return immediately otherwise. Matches
// spec.md's documented default of 16ms.
type Sleeping struct {
	Duration time.Duration
}

// NewSleeping returns a Sleeping strategy with the spec's default
// 16ms sleep duration.
func NewSleeping() *Sleeping {
	return &Sleeping{Duration: 16 * time.Millisecond}
}

// Idle implements IdleStrategy.
func (s *Sleeping) Idle(workCount int) {
	if workCount > 0 {
		return
	}
	time.Sleep(s.Duration)
}

// NoOp never sleeps. Intended for the AgentInvoker case where the
// embedding application controls ticking and the invoker must never
// block the caller's thread.
type NoOp struct{}

// Idle implements IdleStrategy as a no-op.
func (NoOp) Idle(int) {}

// Backoff grows the idle sleep from MinDuration towards MaxDuration
// each consecutive idle cycle, resetting to MinDuration the moment any
// work is done. Offered for embedders that want to reduce wakeups
// during long idle stretches without the fixed-interval cost of
// Sleeping; not the spec default, but built the same way the teacher's
// adaptive worker-pool backoff grows its poll interval under low load.
type Backoff struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	current     time.Duration
}

// NewBackoff returns a Backoff strategy bounded by [min, max].
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{MinDuration: min, MaxDuration: max, current: min}
}

// Idle implements IdleStrategy.
func (b *Backoff) Idle(workCount int) {
	if workCount > 0 {
		b.current = b.MinDuration
		return
	}
	time.Sleep(b.current)
	b.current *= 2
	if b.current > b.MaxDuration {
		b.current = b.MaxDuration
	}
}
