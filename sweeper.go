package accesskit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the expired session sweep every 15 minutes.
// The schedule uses the six field cron format (with seconds).
const DefaultSweepSchedule = "0 */15 * * * *"

// Sweeper periodically deletes expired sessions. Expired sessions are
// already rejected on lookup; sweeping only reclaims storage.
type Sweeper struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	timeout  time.Duration
}

// NewSweeper returns a sweeper for service. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(service *Service, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		cron:     cron.New(cron.WithSeconds()),
		service:  service,
		schedule: schedule,
		timeout:  time.Minute,
	}
}

// Start registers the job and starts the scheduler in the background.
func (w *Sweeper) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.run); err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop stops the scheduler and waits up to the context deadline for a
// running sweep to finish.
func (w *Sweeper) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (w *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.service.SweepSessions(ctx); err != nil {
		w.service.logger.Error().Err(err).Msg("session sweep failed")
	}
}

// SweepSessions deletes every session that expired at or before now and
// returns how many were removed.
func (s *Service) SweepSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.Sweep(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.observeSweep(n)
	if n > 0 {
		s.logger.Info().Int64("sessions", n).Msg("expired sessions swept")
	}
	return n, nil
}
