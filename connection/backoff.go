package connection

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	// Delay before the first reconnect attempt.
	baseDelay = 500 * time.Millisecond
	// Maximum exponent of the delay growth: the delay stops growing after this many attempts.
	maxBackoffShift = 11
)

// Clock is the source of timers, replaceable in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Backoff computes randomized exponentially growing reconnect delays and sleeps between attempts.
// The sleep can be interrupted by Wake.
type Backoff struct {
	mu      sync.Mutex
	attempt int
	// Returns a random number in [0, n).
	rnd      func(n int64) int64
	clock    Clock
	wake     chan struct{}
	sleeping bool
}

// NewBackoff creates a backoff. Nil clock and rnd are replaced with the system timer and math/rand.
func NewBackoff(clock Clock, rnd func(n int64) int64) *Backoff {
	if clock == nil {
		clock = realClock{}
	}
	if rnd == nil {
		rnd = rand.Int63n
	}
	return &Backoff{
		rnd:   rnd,
		clock: clock,
		wake:  make(chan struct{}, 1),
	}
}

// Next returns the delay before the next attempt and advances the attempt counter.
// The delay is uniformly distributed in [base·2^n, base·2^(n+1)) where n is the number of failed
// attempts capped at maxBackoffShift.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	shift := b.attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	b.attempt++
	delay := baseDelay << uint(shift)
	return delay + time.Duration(b.rnd(int64(delay)))
}

// Reset zeroes the attempt counter.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempt returns the number of attempts since the last reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Sleep waits for the next delay. It returns true if the delay has expired and false if the sleep was
// interrupted by Wake or by cancelling the context.
func (b *Backoff) Sleep(ctx context.Context) bool {
	delay := b.Next()

	b.mu.Lock()
	// Drop stale wakeups.
	select {
	case <-b.wake:
	default:
	}
	b.sleeping = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.sleeping = false
		b.mu.Unlock()
	}()

	select {
	case <-b.clock.After(delay):
		return true
	case <-b.wake:
		return false
	case <-ctx.Done():
		return false
	}
}

// Wake interrupts the current sleep. It returns false if the backoff was not sleeping.
func (b *Backoff) Wake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.sleeping {
		return false
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// IsSleeping checks if the backoff is currently waiting.
func (b *Backoff) IsSleeping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sleeping
}
