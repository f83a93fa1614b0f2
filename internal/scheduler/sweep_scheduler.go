package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karmaloop/karmaloop/internal/warmup"
)

// SweepScheduler periodically triggers the orchestrator's sweep. It is the
// external timer the engine itself stays decoupled from: the orchestrator
// only ever runs when ticked.
type SweepScheduler struct {
	orchestrator  *warmup.Orchestrator
	logger        *slog.Logger
	stopChan      chan struct{}
	sweepInterval time.Duration

	mu       sync.Mutex
	running  bool
	lastTick time.Time
}

// NewSweepScheduler creates a scheduler ticking at the given interval.
func NewSweepScheduler(orchestrator *warmup.Orchestrator, sweepInterval time.Duration, logger *slog.Logger) *SweepScheduler {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	return &SweepScheduler{
		orchestrator:  orchestrator,
		logger:        logger,
		stopChan:      make(chan struct{}),
		sweepInterval: sweepInterval,
	}
}

// Start begins the sweep loop. It runs one sweep immediately, then on every
// tick until the context is cancelled or Stop is called.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	s.logger.Info("sweep scheduler starting", "interval", s.sweepInterval)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			s.logger.Info("sweep scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler loop.
func (s *SweepScheduler) Stop() {
	close(s.stopChan)
}

func (s *SweepScheduler) runSweep(ctx context.Context) {
	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()

	if err := s.orchestrator.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
}

func (s *SweepScheduler) setRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}

// Probe reports whether the scheduler is running and has ticked recently.
// Used as the health monitor's sweep-trigger dependency probe.
func (s *SweepScheduler) Probe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("sweep scheduler not running")
	}
	if !s.lastTick.IsZero() && time.Since(s.lastTick) > 3*s.sweepInterval {
		return fmt.Errorf("sweep scheduler stalled: last tick %s ago", time.Since(s.lastTick).Round(time.Second))
	}
	return nil
}
