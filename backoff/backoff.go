// Package backoff computes how long a requeued job stays invisible to
// dispatch after a consumer nacks it.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy maps a failed attempt to a requeue delay. Attempt is 1 after
// the first failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant holds every requeued job back by the same interval.
type Constant time.Duration

// NewConstant returns a Constant strategy of d.
func NewConstant(d time.Duration) Constant { return Constant(d) }

func (c Constant) Delay(int) time.Duration { return time.Duration(c) }

// Exponential doubles the delay per attempt starting at Initial, capped at
// Max when Max is positive. With Jitter the delay is drawn uniformly from
// [0, delay) so jobs that failed together spread out.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential returns an Exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter returns an Exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	d := e.ceiling(attempt)
	if e.Jitter && d > 0 {
		return time.Duration(rand.Int64N(int64(d))) //nolint:gosec // jitter, not security
	}
	return d
}

// ceiling is the unjittered delay of attempt.
func (e *Exponential) ceiling(attempt int) time.Duration {
	if e.Initial <= 0 {
		return 0
	}
	d := e.Initial
	for n := 1; n < attempt; n++ {
		if e.Max > 0 && d >= e.Max {
			break
		}
		if d > math.MaxInt64/2 {
			return math.MaxInt64
		}
		d *= 2
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}
