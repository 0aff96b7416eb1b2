package poller

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// run is one job's ticker loop. Ticks fire at the fixed cadence regardless
// of how long each tick takes; a tick that fires while the previous one is
// still running is skipped, never queued. Each tick executes in its own
// goroutine so the loop keeps draining the ticker during a slow tick.
// The loop exits on cancellation; a tick requests removal (and with it
// cancellation) when the window expires or its row vanishes.
func (s *Scheduler) run(ctx context.Context, j *job) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.setState(StateTerminated)
			return
		case <-ticker.C:
			if !j.running.TryLock() {
				s.opts.Logger.Warn("poller: tick still running, skipping",
					"window_id", j.windowID,
				)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer j.running.Unlock()
				// Ticks run on the scheduler's base context, not the
				// job's: cancelling a job stops future ticks while a
				// tick already in flight runs to completion.
				if s.tick(s.baseCtx, j) {
					s.remove(j.windowID)
				}
			}()
		}
	}
}

// tick executes one pass of the sampling state machine. It returns true
// when the job must terminate (window expired or gone). Fetch and storage
// failures are logged and absorbed: the job stays scheduled and retries at
// its next natural cadence, with no backoff and no retry budget.
func (s *Scheduler) tick(ctx context.Context, j *job) (terminated bool) {
	j.setState(StateRunning)
	defer func() {
		if terminated {
			j.setState(StateTerminated)
		} else {
			j.setState(StateScheduled)
		}
	}()

	if s.opts.Metrics != nil {
		s.opts.Metrics.Ticks.Inc()
	}

	ctx, span := s.tracer.Start(ctx, "poller.tick",
		trace.WithAttributes(attribute.Int64("window_id", j.windowID)))
	defer span.End()

	expired, err := s.windows.IsExpired(ctx, j.windowID)
	if err != nil {
		s.tickFailed(j, span, "check expiry", err)
		return false
	}
	if expired {
		s.opts.Logger.Info("poller: window elapsed, terminating job", "window_id", j.windowID)
		j.recordTick(nil)
		return true
	}

	w, err := s.windows.Get(ctx, j.windowID)
	if errors.Is(err, store.ErrWindowNotFound) {
		// Window vanished between schedule and tick. Stop this job only.
		s.opts.Logger.Warn("poller: window gone, terminating job", "window_id", j.windowID)
		j.recordTick(err)
		return true
	}
	if err != nil {
		s.tickFailed(j, span, "resolve window", err)
		return false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	start := time.Now()
	stats, err := s.fetch.Stats(fetchCtx, w.PostID)
	cancel()
	if s.opts.Metrics != nil {
		s.opts.Metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.opts.Metrics != nil {
			s.opts.Metrics.FetchErrors.Inc()
		}
		span.RecordError(err)
		s.opts.Logger.Warn("poller: fetch failed, will retry next tick",
			"window_id", j.windowID,
			"post_id", w.PostID,
			"error", err,
		)
		j.recordTick(err)
		return false
	}

	sample, err := s.samples.Append(ctx, j.windowID, stats)
	if err != nil {
		if s.opts.Metrics != nil {
			s.opts.Metrics.StoreErrors.Inc()
		}
		span.RecordError(err)
		s.opts.Logger.Warn("poller: append failed, will retry next tick",
			"window_id", j.windowID,
			"post_id", w.PostID,
			"error", err,
		)
		j.recordTick(err)
		return false
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.Samples.Inc()
	}
	j.recordTick(nil)

	s.opts.Logger.Debug("poller: sample captured",
		"window_id", j.windowID,
		"post_id", w.PostID,
		"likes", stats.Likes,
		"comments", stats.Comments,
		"reposts", stats.Reposts,
		"views", stats.Views,
	)

	if s.opts.OnSample != nil {
		s.opts.OnSample(sample)
	}
	return false
}

func (s *Scheduler) tickFailed(j *job, span trace.Span, op string, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.StoreErrors.Inc()
	}
	span.RecordError(err)
	s.opts.Logger.Warn("poller: "+op+" failed, will retry next tick",
		"window_id", j.windowID,
		"error", err,
	)
	j.recordTick(err)
}
