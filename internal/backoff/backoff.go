// Package backoff implements the capped-exponential, cancellation-aware
// retry policy used by the elimination array's wait windows (spec sections
// 5 and 6: "busy-retry on CAS failure with optional exponential backoff
// capped at ~64 ms", base 6ms / exponent cap x64). Package mcas and the
// other containers' own CAS retry loops do not use it.
//
// The shape (a value type carrying retry state, a Wait method, a Reset
// method) mirrors the retry-loop usage documented for hybscloud's iox.Backoff
// in the lfq package reference material; this package reimplements that
// shape in the teacher's own idiom rather than importing a module that no
// example repo's go.mod actually depends on.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy configures a Backoff's growth curve. The zero value selects the
// spec-mandated defaults (base 6ms, cap x64).
type Policy struct {
	// Base is the initial sleep duration. Defaults to 6ms if zero.
	Base time.Duration
	// CapMultiple bounds the exponent: the sleep duration before jitter
	// never exceeds Base*CapMultiple (jitter then scales it by up to 1.5x).
	// Defaults to 64 if zero.
	CapMultiple int
}

func (p Policy) base() time.Duration {
	if p.Base <= 0 {
		return 6 * time.Millisecond
	}
	return p.Base
}

func (p Policy) capMultiple() int {
	if p.CapMultiple <= 0 {
		return 64
	}
	return p.CapMultiple
}

// Backoff tracks the retry count for one logical retry loop. Not safe for
// concurrent use: each retrying goroutine should hold its own Backoff.
type Backoff struct {
	policy  Policy
	attempt int
}

// New constructs a Backoff using the given Policy.
func New(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Reset clears the retry count, e.g. after a successful attempt.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Duration returns the sleep duration for the current attempt, without
// advancing it. Includes jitter in [0.5x, 1.5x) of the capped exponential
// value, to avoid synchronized thundering-herd retries.
func (b *Backoff) Duration() time.Duration {
	mult := 1 << uint(min(b.attempt, 6)) // 2^6 == 64, matches capMultiple default
	cap := b.policy.capMultiple()
	if mult > cap {
		mult = cap
	}
	d := b.policy.base() * time.Duration(mult)
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(d) * jitter)
}

// Wait sleeps for Duration() and advances the attempt counter, returning
// ctx.Err() if ctx is cancelled first. Per spec section 5, cancellation is
// the only way a core operation's suspension point can fail; the caller is
// expected to treat that as spec section 7's Cancelled condition and retry
// at a higher level, not as an algorithmic failure.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.Duration()
	b.attempt++
	if ctx == nil {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
