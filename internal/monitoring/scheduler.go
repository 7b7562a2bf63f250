package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultMaintenanceTimeout bounds a single maintenance run.
const DefaultMaintenanceTimeout = 5 * time.Minute

// Maintainer runs storage housekeeping.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Scheduler runs storage maintenance on a cron schedule.
type Scheduler struct {
	target  Maintainer
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewScheduler creates a new scheduler instance. expr accepts standard
// five-field cron syntax and descriptors such as "@daily".
func NewScheduler(target Maintainer, expr string) (*Scheduler, error) {
	s := &Scheduler{
		target:  target,
		cron:    cron.New(),
		timeout: DefaultMaintenanceTimeout,
	}
	if _, err := s.cron.AddFunc(expr, s.runMaintenance); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", expr, err)
	}
	return s, nil
}

// Run starts the scheduler in its own goroutine.
func (s *Scheduler) Run() {
	log.Info().Msg("Starting maintenance scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped maintenance scheduler")
}

// NextRun reports when maintenance fires next. It is zero before Run.
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun returns the time and result of the most recent run.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := s.target.Maintain(ctx)

	s.mu.Lock()
	s.lastRun, s.lastErr = start, err
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Scheduled storage maintenance failed")
		return
	}
	log.Info().Dur("duration", time.Since(start)).Msg("Scheduled storage maintenance finished")
}
