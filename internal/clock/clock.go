// Package clock provides the two injectable clock abstractions the
// bootstrap core uses for timeout arithmetic: an epoch-millisecond wall
// clock and a monotonic nanosecond clock. Both are interfaces so tests
// can substitute a settable fake instead of waiting on real time.
package clock

import "time"

// EpochClock returns milliseconds since the Unix epoch. Used for
// wall-clock comparisons against driver-reported heartbeats, which are
// themselves wall-clock timestamps written by a foreign process.
type EpochClock interface {
	TimeMillis() int64
}

// NanoClock returns a monotonic nanosecond count. Used for
// intra-process duration measurement (inter-service timeout, keepalive
// interval) where monotonicity matters more than wall-clock meaning.
type NanoClock interface {
	NanoTime() int64
}

// SystemEpochClock is the default EpochClock, backed by time.Now().
type SystemEpochClock struct{}

// TimeMillis implements EpochClock.
func (SystemEpochClock) TimeMillis() int64 {
	return time.Now().UnixMilli()
}

// SystemNanoClock is the default NanoClock, backed by a monotonic
// time.Now() reading.
type SystemNanoClock struct{}

// NanoTime implements NanoClock.
func (SystemNanoClock) NanoTime() int64 {
	return int64(time.Since(monotonicBase))
}

// monotonicBase is the process-start reading SystemNanoClock measures
// from; time.Since uses its monotonic component.
var monotonicBase = time.Now()

// Settable is a test double implementing both EpochClock and NanoClock
// over a single manually-advanced value, so tests can deterministically
// drive timeout and staleness logic without sleeping.
type Settable struct {
	millis int64
	nanos  int64
}

// NewSettable creates a Settable clock starting at the given epoch
// millisecond and nanosecond values.
func NewSettable(millis, nanos int64) *Settable {
	return &Settable{millis: millis, nanos: nanos}
}

// TimeMillis implements EpochClock.
func (s *Settable) TimeMillis() int64 { return s.millis }

// NanoTime implements NanoClock.
func (s *Settable) NanoTime() int64 { return s.nanos }

// Advance moves both clocks forward by d, keeping them in lockstep the
// way a real process's wall and monotonic clocks advance together.
func (s *Settable) Advance(d time.Duration) {
	s.millis += d.Milliseconds()
	s.nanos += d.Nanoseconds()
}

// Set pins both clocks to absolute values; useful for reproducing a
// specific heartbeat-staleness scenario.
func (s *Settable) Set(millis, nanos int64) {
	s.millis = millis
	s.nanos = nanos
}
