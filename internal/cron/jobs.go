package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconciler is the subset of the poll scheduler the sweep job drives.
// Defined here to avoid a dependency on the poller package.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconcileSweepJob periodically re-runs window reconciliation. The startup
// pass only schedules windows that are stale at boot; this sweep picks up
// windows whose last sample has since gone stale without a new client
// request arriving.
type ReconcileSweepJob struct {
	Poller       Reconciler
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*ReconcileSweepJob)(nil)

// Name implements Job.
func (j *ReconcileSweepJob) Name() string { return "reconcile_sweep" }

// Schedule implements Job.
func (j *ReconcileSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run re-runs reconciliation. Unlike at startup, a failure here is not
// fatal: the next sweep retries.
func (j *ReconcileSweepJob) Run(ctx context.Context) error {
	n, err := j.Poller.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("cron: reconcile sweep: %w", err)
	}
	if n > 0 {
		j.Logger.Info("cron: reconcile sweep scheduled jobs", "count", n)
	}
	return nil
}
