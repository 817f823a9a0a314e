package scratch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs [Store.Sweep] on a cron schedule so that retained or
// abandoned request directories are reclaimed even when no uploads arrive.
type Sweeper struct {
	store  *Store
	maxAge time.Duration
	cron   *cron.Cron
}

// NewSweeper registers a sweep of store on schedule, a standard cron spec or
// descriptor such as "@every 10m".
func NewSweeper(store *Store, schedule string, maxAge time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		maxAge: maxAge,
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs one sweep immediately, then begins the schedule.
func (s *Sweeper) Start() {
	slog.Info("scratch sweeper started", "root", s.store.Root(), "max_age", s.maxAge.String())
	s.run()
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("scratch sweeper stopped")
	case <-ctx.Done():
		slog.Warn("scratch sweeper did not stop in time", "error", ctx.Err())
	}
}

func (s *Sweeper) run() {
	start := time.Now()
	removed := s.store.Sweep(context.Background(), s.maxAge)
	slog.Debug("scratch sweep completed",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
