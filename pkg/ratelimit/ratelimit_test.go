package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when the limiter sleeps.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func TestLimiter_NoBlockWhenZeroLimit(t *testing.T) {
	limiter := NewLimiter(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("limiter with 0 limit should not block")
	}
}

func TestLimiter_UnderLimitDoesNotSleep(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(3, WithClock(clock.Now, clock.Sleep))

	for i := 0; i < 3; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clock.Advance(time.Second)
	}

	if len(clock.sleeps) != 0 {
		t.Errorf("expected no sleeps, got %v", clock.sleeps)
	}
	if got := retained(t, limiter); got != 3 {
		t.Errorf("expected 3 retained grants, got %d", got)
	}
}

func TestLimiter_WaitsForOldestToExpire(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(2, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	_ = limiter.Wait(ctx) // t=0
	clock.Advance(10 * time.Second)
	_ = limiter.Wait(ctx) // t=10
	clock.Advance(5 * time.Second)

	// t=15, window full: oldest grant at t=0 expires at t=60.
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clock.sleeps) != 1 {
		t.Fatalf("expected exactly one sleep, got %v", clock.sleeps)
	}
	if clock.sleeps[0] != 45*time.Second {
		t.Errorf("expected 45s wait, got %v", clock.sleeps[0])
	}
	if got := retained(t, limiter); got != 2 {
		t.Errorf("expected 2 retained grants after the oldest expired, got %d", got)
	}
}

func TestLimiter_WaitBounds(t *testing.T) {
	for _, limit := range []int{1, 5, 30} {
		clock := newFakeClock()
		limiter := NewLimiter(limit, WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		for i := 0; i < limit*4; i++ {
			if err := limiter.Wait(ctx); err != nil {
				t.Fatalf("limit %d: unexpected error: %v", limit, err)
			}
			if got := retained(t, limiter); got > limit {
				t.Fatalf("limit %d: retained %d grants in the trailing window", limit, got)
			}
			clock.Advance(100 * time.Millisecond)
		}

		for _, d := range clock.sleeps {
			if d < 0 || d > Window {
				t.Errorf("limit %d: wait %v outside [0, %v]", limit, d, Window)
			}
		}
		if len(clock.sleeps) == 0 {
			t.Errorf("limit %d: expected the limiter to wait at least once", limit)
		}
	}
}

func TestLimiter_ConcurrentCallersStayWithinLimit(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(5, WithClock(clock.Now, clock.Sleep))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := retained(t, limiter); got > 5 {
		t.Errorf("expected at most 5 retained grants, got %d", got)
	}
	// The clock only moves while sleeping, so each sleep expires a whole batch.
	if len(clock.sleeps) != 3 {
		t.Errorf("expected 3 waits for 20 callers at limit 5, got %d", len(clock.sleeps))
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(1, WithClock(clock.Now, clock.Sleep))

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
	if got := retained(t, limiter); got != 1 {
		t.Errorf("cancelled wait must not record a grant, retained %d", got)
	}
}

func TestLimiter_RealSleep(t *testing.T) {
	limiter := NewLimiter(1)
	// Pretend the only grant happened just under a minute ago.
	limiter.grants = []time.Time{time.Now().Add(-Window + 50*time.Millisecond)}

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	duration := time.Since(start)

	if duration < 20*time.Millisecond || duration > 500*time.Millisecond {
		t.Errorf("expected wait around 50ms, took %v", duration)
	}
}

func retained(t *testing.T, l *Limiter) int {
	t.Helper()
	n, err := l.Retained(context.Background())
	if err != nil {
		t.Fatalf("Retained: %v", err)
	}
	return n
}

func TestLimiter_RetainedHonoursContext(t *testing.T) {
	sleeping := make(chan struct{})
	release := make(chan struct{})
	sleep := func(ctx context.Context, d time.Duration) error {
		close(sleeping)
		<-release
		return nil
	}
	limiter := NewLimiter(1, WithClock(nil, sleep))

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- limiter.Wait(context.Background()) }()
	<-sleeping

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limiter.Retained(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while Wait holds the lock, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := retained(t, limiter); got != 2 {
		t.Errorf("expected 2 retained grants, got %d", got)
	}
}
