package worker

import (
	"context"
	"time"
)

// sweepLoop periodically returns jobs whose lease expired to the queue. A
// job is considered abandoned once it has been processing for longer than
// LeaseTimeout, so the timeout must exceed the slowest legitimate job.
func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LeaseSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one lease-expiry pass and returns how many jobs it reclaimed.
func (w *Worker) Sweep(ctx context.Context) int64 {
	n, err := w.deps.Jobs.ReclaimStaleJobs(ctx, w.cfg.LeaseTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("lease sweep failed", "error", err)
		}
		return 0
	}
	if n > 0 {
		w.metrics.reclaimed.Add(ctx, n)
		w.logger.Warn("reclaimed jobs with expired lease", "count", n, "lease_timeout", w.cfg.LeaseTimeout)
	}
	return n
}
