package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/exam-engine/internal/session"
)

// Reaper periodically drops finished sessions from memory once their
// retention window has passed. Durable snapshots are left untouched.
type Reaper struct {
	manager   *session.Manager
	interval  time.Duration
	retention time.Duration
}

// NewReaper creates a new cleanup worker
func NewReaper(manager *session.Manager, interval, retention time.Duration) *Reaper {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	if retention <= 0 {
		retention = 10 * time.Minute
	}

	return &Reaper{
		manager:   manager,
		interval:  interval,
		retention: retention,
	}
}

// Start begins the cleanup worker in a goroutine
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

// run is the main loop for the cleanup worker
func (r *Reaper) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", r.interval, "retention", r.retention)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap removes finished sessions past retention
func (r *Reaper) reap() {
	slog.Debug("running cleanup cycle")

	reaped := r.manager.ReapFinished(r.retention)
	if len(reaped) == 0 {
		slog.Debug("no finished sessions to reap")
		return
	}

	for _, id := range reaped {
		slog.Info("finished session reaped", "session_id", id)
	}
}
