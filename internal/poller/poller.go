// Package poller runs one recurring sampling job per open observation
// window. The scheduler owns an explicit registry mapping window ids to
// cancellable jobs; each job is a goroutine ticking at a fixed cadence and
// driving a small state machine (scheduled → running → scheduled or
// terminated). Jobs are ephemeral: the registry is rebuilt from persisted
// windows by Reconcile on every start.
package poller

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// WindowStore is the subset of store.Store the poller reads windows through.
// Defined here so tests can substitute fakes without a database.
type WindowStore interface {
	Get(ctx context.Context, windowID int64) (store.Window, error)
	IsExpired(ctx context.Context, windowID int64) (bool, error)
	ListOpen(ctx context.Context) ([]store.Window, error)
}

// SampleStore is the subset of store.Store the poller writes samples through.
type SampleStore interface {
	Append(ctx context.Context, windowID int64, stats store.Stats) (store.Sample, error)
	HasRecent(ctx context.Context, windowID int64, since time.Duration) (bool, error)
}

// Fetcher retrieves current counters for a post. Implementations must bound
// their own transport timeouts; the worker additionally applies a per-tick
// deadline.
type Fetcher interface {
	Stats(ctx context.Context, postID string) (store.Stats, error)
}

// JobState describes where a job is in its lifecycle.
type JobState string

// Job lifecycle states.
const (
	StateScheduled  JobState = "scheduled"
	StateRunning    JobState = "running"
	StateTerminated JobState = "terminated"
)
