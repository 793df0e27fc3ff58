package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// RunJanitor prunes stale entries from every pruner each interval until ctx is done.
func RunJanitor(ctx context.Context, interval time.Duration, pruners ...Pruner) {
	if interval <= 0 || len(pruners) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := 0
			for _, p := range pruners {
				removed += p.Prune(now)
			}
			if removed > 0 {
				slog.Debug("pruned rate limit entries", "removed", removed)
			}
		}
	}
}
