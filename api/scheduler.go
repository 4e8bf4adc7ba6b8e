/*
scheduler.go - Automated quarter rollover and completion sweep

PURPOSE:
  Periodically rolls every agent forward to the current quarter and credits
  bookings whose last flight departed more than a day ago, so agents do not
  have to wait for a manual /api/admin call.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick runs RunRollover first, then SweepCompletions, so credits
    land in the quarter they belong to
  - Both operations are idempotent; a missed or doubled tick is harmless

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - Enabled:  Whether scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(svc, logger)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRollover and TriggerSweep (manual runs)
  - agent/rollover.go: RunRollover
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skyagent/tier-engine/agent"
)

// Scheduler runs rollover and completion sweeps on an interval.
type Scheduler struct {
	Interval time.Duration
	Enabled  bool

	svc *agent.Service
	log logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(svc *agent.Service, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		Interval: time.Hour,
		Enabled:  true,
		svc:      svc,
		log:      log.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler. It runs once immediately, then every Interval
// until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.log.WithField("interval", s.Interval.String()).Info("started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.log.Info("stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one rollover and one completion sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	rolled, err := s.svc.RunRollover(ctx)
	if err != nil {
		s.log.WithError(err).Error("rollover finished with errors")
	}

	swept, err := s.svc.SweepCompletions(ctx)
	if err != nil {
		s.log.WithError(err).Error("completion sweep failed")
		return
	}

	if len(rolled) > 0 || swept.Completed > 0 || swept.Failed > 0 {
		s.log.WithFields(logrus.Fields{
			"agents_rolled":      len(rolled),
			"bookings_completed": swept.Completed,
			"bookings_failed":    swept.Failed,
		}).Info("run completed")
	}
}
