package jobs

import (
	"context"
	"time"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/telemetry"
)

// Reap prunes terminal jobs older than retention every interval until ctx is
// done. A retention <= 0 keeps jobs for the life of the process.
func (r *Registry) Reap(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = retention / 4
		if interval < time.Second {
			interval = time.Second
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(r.now().Add(-retention)); n > 0 {
				telemetry.Info("jobs.pruned", map[string]any{"removed": n, "remaining": r.Len()})
			}
		}
	}
}
