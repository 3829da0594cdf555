package bibliometrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs RefreshAll on a cron schedule. A run that is still going
// when the next one is due causes that next run to be skipped.
type Scheduler struct {
	refresher *Refresher
	cron      *cron.Cron
	timeout   time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler parses a standard five-field cron spec. timeout bounds a
// single run; zero means one hour.
func NewScheduler(refresher *Refresher, spec string, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if timeout == 0 {
		timeout = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		refresher: refresher,
		cron:      cron.New(),
		timeout:   timeout,
		logger:    logger.With().Str("component", "bibliometrics_scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.run))
	return s, nil
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Time("next_run", s.Next()).Msg("indicator refresh scheduled")
}

// Stop cancels a running refresh and waits for it to return or for ctx to
// be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now())
}

func (s *Scheduler) run() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("previous indicator refresh still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	if _, err := s.refresher.RefreshAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled indicator refresh failed")
	}
}
