package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically closes sessions that have gone idle.
type Janitor struct {
	Manager     *Manager
	Interval    time.Duration
	IdleTimeout time.Duration
}

func (j *Janitor) Run(ctx context.Context) {
	if j.Manager == nil || j.Interval <= 0 || j.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := j.Manager.CloseAll(); err != nil {
				slog.Warn("closing sessions on shutdown failed", "err", err)
			}
			return
		case <-ticker.C:
			if n := j.Manager.EvictIdle(j.IdleTimeout); n > 0 {
				slog.Info("evicted idle sessions", "count", n, "remaining", j.Manager.Len())
			}
		}
	}
}
