package services

import (
	"context"
	"time"
)

// runEvery calls fn every interval until ctx is cancelled. Each call gets its own timeout.
func runEvery(ctx context.Context, interval, timeout time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			fn(runCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
