// internal/app/system/workers/scheduler.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/system/tasks"
	"go.uber.org/zap"
)

// Scheduler runs each registered job on its own ticker until stopped.
// A job never overlaps with itself: a tick that arrives while the previous
// run is still going is dropped.
type Scheduler struct {
	jobs   []tasks.Job
	log    *zap.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScheduler creates a scheduler for the given jobs. Jobs with a
// non-positive interval are ignored.
func NewScheduler(logger *zap.Logger, jobs ...tasks.Job) *Scheduler {
	s := &Scheduler{log: logger, stopCh: make(chan struct{})}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			logger.Warn("skipping job without interval or run func", zap.String("job", j.Name))
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Start launches one goroutine per job.
func (s *Scheduler) Start() {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(j)
		s.log.Info("background job started",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval))
	}
}

// Stop signals every job loop to exit and waits for in-flight runs.
// Calling Stop more than once is safe.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info("background jobs stopped")
}

func (s *Scheduler) loop(j tasks.Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(j)
		}
	}
}

func (s *Scheduler) runOnce(j tasks.Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = tasks.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Cancel the run promptly when the scheduler stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-done:
		}
	}()

	if err := j.Run(ctx); err != nil {
		s.log.Error("background job failed", zap.String("job", j.Name), zap.Error(err))
	}
}
