package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Options configures a Scheduler.
type Options struct {
	// Interval is the fixed tick cadence of every job.
	Interval time.Duration

	// FetchTimeout bounds the VK call inside one tick.
	FetchTimeout time.Duration

	Logger  *slog.Logger
	Metrics *Metrics

	// OnSample, when set, is invoked after every successful append. Used
	// to feed the live sample stream. Must not block.
	OnSample func(store.Sample)
}

// Scheduler owns the registry of live polling jobs, one per open window.
// It is safe for concurrent use by request handlers and the reconciler.
type Scheduler struct {
	windows WindowStore
	samples SampleStore
	fetch   Fetcher
	gate    *Gate
	opts    Options
	tracer  trace.Tracer

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu     sync.Mutex
	jobs   map[int64]*job
	closed bool
	wg     sync.WaitGroup
}

// job is the in-memory binding of one window to its cancellable schedule.
type job struct {
	windowID int64
	cancel   context.CancelFunc

	// running guards against overlapping ticks: if a tick is still in
	// flight when the next one fires, the new tick is skipped, not queued.
	running sync.Mutex

	mu       sync.Mutex
	state    JobState
	lastTick time.Time
	lastErr  string
}

func (j *job) setState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *job) recordTick(err error) {
	j.mu.Lock()
	j.lastTick = time.Now()
	if err != nil {
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
	j.mu.Unlock()
}

// JobStatus is a point-in-time view of one job, for the status endpoint.
type JobStatus struct {
	WindowID  int64     `json:"window_id"`
	State     JobState  `json:"state"`
	LastTick  time.Time `json:"last_tick,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// New creates a Scheduler. Jobs are added via Schedule or Reconcile.
func New(windows WindowStore, samples SampleStore, fetch Fetcher, gate *Gate, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		windows:   windows,
		samples:   samples,
		fetch:     fetch,
		gate:      gate,
		opts:      opts,
		tracer:    otel.Tracer("pulsewatch/poller"),
		baseCtx:   baseCtx,
		cancelAll: cancel,
		jobs:      make(map[int64]*job),
	}
}

// Gate returns the dedup gate the scheduler reconciles through.
func (s *Scheduler) Gate() *Gate { return s.gate }

// Schedule registers a polling job for windowID and starts its ticker.
// Returns false without side effects when a job for this window is already
// registered or the scheduler is closed.
func (s *Scheduler) Schedule(windowID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, exists := s.jobs[windowID]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	j := &job{windowID: windowID, cancel: cancel, state: StateScheduled}
	s.jobs[windowID] = j
	if s.opts.Metrics != nil {
		s.opts.Metrics.ActiveJobs.Inc()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, j)
	}()

	s.opts.Logger.Info("poller: job scheduled", "window_id", windowID, "interval", s.opts.Interval)
	return true
}

// Cancel removes the job for windowID. Best-effort: a tick already in
// flight runs to completion; only future ticks are prevented.
func (s *Scheduler) Cancel(windowID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(windowID)
}

// remove deregisters a job after its worker observed expiry.
func (s *Scheduler) remove(windowID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(windowID)
}

func (s *Scheduler) removeLocked(windowID int64) {
	j, ok := s.jobs[windowID]
	if !ok {
		return
	}
	delete(s.jobs, windowID)
	j.cancel()
	if s.opts.Metrics != nil {
		s.opts.Metrics.ActiveJobs.Dec()
	}
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Snapshot returns a point-in-time view of all registered jobs.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		out = append(out, JobStatus{
			WindowID:  j.windowID,
			State:     j.state,
			LastTick:  j.lastTick,
			LastError: j.lastErr,
		})
		j.mu.Unlock()
	}
	return out
}

// Close cancels all jobs and waits for in-flight ticks to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id := range s.jobs {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	s.cancelAll()
	s.wg.Wait()
	s.opts.Logger.Info("poller: scheduler stopped")
}
