// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/reaper"
	"go.uber.org/zap"
)

// Job is a unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means DefaultTimeout.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// DefaultTimeout applies to jobs that do not set one.
const DefaultTimeout = 30 * time.Second

// Sweeper is satisfied by *reaper.Reaper.
type Sweeper interface {
	Sweep(ctx context.Context) (reaper.SweepResult, error)
}

// TrashReapJob permanently removes trashed files on every tick.
// The reaper logs its own per-sweep summary.
func TrashReapJob(r Sweeper, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = time.Minute
	}
	return Job{
		Name:     "trash-reap",
		Interval: interval,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			res, err := r.Sweep(ctx)
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				logger.Warn("trash sweep left entries for retry", zap.Int("failed", res.Failed))
			}
			return nil
		},
	}
}
