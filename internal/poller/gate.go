package poller

import (
	"context"
	"fmt"
	"time"
)

// dedupFactor widens the recency threshold beyond one poll interval,
// giving slack against scheduler jitter and clock skew between the check
// and the next tick.
const dedupFactor = 2

// Gate decides whether a window needs a fresh polling job. Clients may
// open or extend the same watch repeatedly inside one poll interval;
// scheduling a job each time would stack duplicates against one window.
// A sample newer than dedupFactor × interval means a job is already
// effectively attending to the window.
type Gate struct {
	samples  SampleStore
	interval time.Duration
}

// NewGate creates a Gate for the given poll interval.
func NewGate(samples SampleStore, interval time.Duration) *Gate {
	return &Gate{samples: samples, interval: interval}
}

// ShouldSchedule reports whether windowID needs a new polling job.
func (g *Gate) ShouldSchedule(ctx context.Context, windowID int64) (bool, error) {
	recent, err := g.samples.HasRecent(ctx, windowID, dedupFactor*g.interval)
	if err != nil {
		return false, fmt.Errorf("poller: gate check for window %d: %w", windowID, err)
	}
	return !recent, nil
}
