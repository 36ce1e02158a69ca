package ratelimit

import (
	"context"
	"time"
)

// Window is the trailing duration over which grants are counted.
const Window = time.Minute

// Limiter is a sliding-window request throttle. It keeps the timestamps of its
// own grants over the trailing Window and makes callers wait once the
// configured number of grants per Window has been reached.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	limit int

	// lock is a one-slot semaphore so that waiting for it honours ctx.
	lock   chan struct{}
	grants []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source and the sleep function. Tests use it to
// drive the limiter without real waits.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// NewLimiter creates a limiter allowing requestsPerMinute grants in any
// trailing minute. If requestsPerMinute is <= 0, the limiter does not block.
func NewLimiter(requestsPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		limit: requestsPerMinute,
		lock:  make(chan struct{}, 1),
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured number of grants per Window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Wait blocks until a grant is available, records it and returns. Only
// callers of the same Limiter are held back; the lock is kept across the
// wait so concurrent callers never push the window past the limit.
//
// The wait is computed once from the oldest retained grant and is not
// re-validated after waking: exactly one slot frees up at that boundary.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limit <= 0 {
		return nil
	}

	select {
	case l.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.lock }()

	now := l.now()
	l.purge(now)

	if len(l.grants) >= l.limit {
		wait := Window - now.Sub(l.grants[0])
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			now = l.now()
		}
	}

	l.grants = append(l.grants, now)
	return nil
}

// Retained returns how many grants fall inside the trailing Window. It
// queues behind Wait, which can hold the lock for up to a Window, so it
// honours ctx the same way.
func (l *Limiter) Retained(ctx context.Context) (int, error) {
	select {
	case l.lock <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-l.lock }()
	l.purge(l.now())
	return len(l.grants), nil
}

// purge drops grants older than Window. Must be called with lock held.
func (l *Limiter) purge(now time.Time) {
	keep := 0
	for keep < len(l.grants) && now.Sub(l.grants[keep]) >= Window {
		keep++
	}
	if keep > 0 {
		l.grants = append(l.grants[:0], l.grants[keep:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
