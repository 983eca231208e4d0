package http

import (
	"context"
	"sync/atomic"
	"time"
)

// frameLimiter caps inbound frames per connection per minute. A zero or
// negative limit disables it.
type frameLimiter struct {
	limit   int64
	counter atomic.Int64
	reset   *time.Ticker
}

func newFrameLimiter(limit int) *frameLimiter {
	if limit <= 0 {
		return &frameLimiter{limit: 0}
	}
	return &frameLimiter{
		limit: int64(limit),
		reset: time.NewTicker(time.Minute),
	}
}

func (r *frameLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	return r.counter.Add(1) <= r.limit
}

func (r *frameLimiter) startReset(ctx context.Context) {
	if r == nil || r.reset == nil {
		return
	}
	go func() {
		for {
			select {
			case <-r.reset.C:
				r.counter.Store(0)
			case <-ctx.Done():
				r.reset.Stop()
				return
			}
		}
	}()
}
