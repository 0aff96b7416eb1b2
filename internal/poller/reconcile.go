package poller

import (
	"context"
	"fmt"
)

// Reconcile rebuilds the job set from persisted windows: every window still
// open and lacking a recent sample gets a job. Run once before the gateway
// serves requests (a failure to enumerate windows is fatal to startup) and
// optionally again on a cron cadence to pick up windows whose samples went
// stale without a new client request.
//
// A gate or schedule failure for an individual window is logged and
// skipped; it does not abort reconciliation of the rest.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	open, err := s.windows.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("poller: reconcile: %w", err)
	}

	scheduled := 0
	for _, w := range open {
		ok, err := s.gate.ShouldSchedule(ctx, w.ID)
		if err != nil {
			s.opts.Logger.Warn("poller: reconcile skipped window",
				"window_id", w.ID,
				"post_id", w.PostID,
				"error", err,
			)
			continue
		}
		if !ok {
			continue
		}
		if s.Schedule(w.ID) {
			scheduled++
		}
	}

	s.opts.Logger.Info("poller: reconcile complete",
		"open_windows", len(open),
		"scheduled", scheduled,
	)
	return scheduled, nil
}
