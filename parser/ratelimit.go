package parser

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out sequential operations by a fixed interval.
//
// Example usage:
//
//	throttle := parser.NewThrottle(300 * time.Millisecond)
//
//	for _, u := range urls {
//	    if err := throttle.Wait(ctx); err != nil {
//	        return err
//	    }
//	    // ... perform throttled operation ...
//	}
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing one operation per interval.
// The first Wait returns immediately. A zero interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next operation is allowed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
