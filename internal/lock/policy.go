package lock

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy tunes the acquisition protocol. The zero values of MaxAttempts and
// Deadline mean "retry forever".
type Policy struct {
	// SettlePeriod is how long a claimant waits before rechecking that its
	// claim survived. It is a heuristic, not a correctness bound.
	SettlePeriod time.Duration

	// Wait is the fixed part of the delay after finding a foreign holder.
	Wait time.Duration

	// MaxJitter bounds the random part of that delay: [0, MaxJitter).
	MaxJitter time.Duration

	// MaxAttempts limits how many contended passes (blocked, lost race,
	// failed claim write) are retried. 0 = unlimited.
	MaxAttempts int

	// Deadline bounds the whole acquisition. 0 = none.
	Deadline time.Duration
}

// DefaultPolicy returns the timings the bot has always used in production.
func DefaultPolicy() Policy {
	return Policy{
		SettlePeriod: 10 * time.Second,
		Wait:         10 * time.Second,
		MaxJitter:    10 * time.Second,
	}
}

// contentionBackOff yields Wait plus a uniform jitter with millisecond
// granularity. It never stops on its own.
type contentionBackOff struct {
	wait   time.Duration
	jitter time.Duration
	int64n func(n int64) int64
}

func (b *contentionBackOff) NextBackOff() time.Duration {
	d := b.wait
	if ms := b.jitter.Milliseconds(); ms > 0 {
		d += time.Duration(b.int64n(ms)) * time.Millisecond
	}
	return d
}

func (b *contentionBackOff) Reset() {}

// newBackOff builds the retry schedule for one Acquire call.
func (p Policy) newBackOff(int64n func(int64) int64) backoff.BackOff {
	if int64n == nil {
		int64n = rand.Int63n
	}
	var b backoff.BackOff = &contentionBackOff{
		wait:   p.Wait,
		jitter: p.MaxJitter,
		int64n: int64n,
	}
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return b
}
