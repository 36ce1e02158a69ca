package scraper

import (
	"context"
	"time"

	"github.com/FranksOps/searchmcp/internal/metrics"
	"github.com/FranksOps/searchmcp/pkg/ratelimit"
)

// Acquire waits on l and records the wait under name. A nil limiter grants
// immediately.
func Acquire(ctx context.Context, l *ratelimit.Limiter, name string) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	err := l.Wait(ctx)
	metrics.ObserveRateLimitWait(name, time.Since(start))
	return err
}
