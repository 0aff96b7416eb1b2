package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// fakeClock is a concurrency-safe simulated clock for dedup tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeWindows is an in-memory WindowStore.
type fakeWindows struct {
	mu      sync.Mutex
	byID    map[int64]store.Window
	expired map[int64]bool
	getErr  error
	expErr  error
	listErr error
}

func newFakeWindows() *fakeWindows {
	return &fakeWindows{
		byID:    make(map[int64]store.Window),
		expired: make(map[int64]bool),
	}
}

func (f *fakeWindows) add(id int64, postID string, expired bool) {
	f.mu.Lock()
	f.byID[id] = store.Window{ID: id, PostID: postID}
	f.expired[id] = expired
	f.mu.Unlock()
}

func (f *fakeWindows) Get(_ context.Context, id int64) (store.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return store.Window{}, f.getErr
	}
	w, ok := f.byID[id]
	if !ok {
		return store.Window{}, store.ErrWindowNotFound
	}
	return w, nil
}

func (f *fakeWindows) IsExpired(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expErr != nil {
		return false, f.expErr
	}
	if v, ok := f.expired[id]; ok {
		return v, nil
	}
	// Missing windows count as expired, as in the real store.
	if _, ok := f.byID[id]; !ok {
		return true, nil
	}
	return false, nil
}

func (f *fakeWindows) ListOpen(_ context.Context) ([]store.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var open []store.Window
	for id, w := range f.byID {
		if !f.expired[id] {
			open = append(open, w)
		}
	}
	return open, nil
}

// fakeSamples is an in-memory SampleStore driven by a fake clock, so
// recency checks respond to simulated time.
type fakeSamples struct {
	mu        sync.Mutex
	clock     *fakeClock
	byWindow  map[int64][]store.Sample
	appendErr error
	recentErr error
}

func newFakeSamples(clock *fakeClock) *fakeSamples {
	return &fakeSamples{clock: clock, byWindow: make(map[int64][]store.Sample)}
}

func (f *fakeSamples) Append(_ context.Context, windowID int64, stats store.Stats) (store.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return store.Sample{}, f.appendErr
	}
	smp := store.Sample{WindowID: windowID, Stats: stats, CapturedAt: f.clock.Now()}
	f.byWindow[windowID] = append(f.byWindow[windowID], smp)
	return smp, nil
}

func (f *fakeSamples) HasRecent(_ context.Context, windowID int64, since time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return false, f.recentErr
	}
	cutoff := f.clock.Now().Add(-since)
	for _, smp := range f.byWindow[windowID] {
		if smp.CapturedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSamples) count(windowID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byWindow[windowID])
}

func (f *fakeSamples) list(windowID int64) []store.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Sample, len(f.byWindow[windowID]))
	copy(out, f.byWindow[windowID])
	return out
}

// fakeFetcher returns queued stats in order, then repeats the last entry.
type fakeFetcher struct {
	mu    sync.Mutex
	queue []store.Stats
	err   error
	calls int
}

func (f *fakeFetcher) Stats(_ context.Context, _ string) (store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return store.Stats{}, f.err
	}
	if len(f.queue) == 0 {
		return store.Stats{}, nil
	}
	stats := f.queue[0]
	if len(f.queue) > 1 {
		f.queue = f.queue[1:]
	}
	return stats, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestScheduler wires a scheduler over the fakes with a long interval so
// no ticks fire unless a test drives them explicitly.
func newTestScheduler(fw *fakeWindows, fs *fakeSamples, fetch Fetcher, interval time.Duration) *Scheduler {
	return New(fw, fs, fetch, NewGate(fs, interval), Options{
		Interval:     interval,
		FetchTimeout: time.Second,
		Logger:       discardLogger(),
		Metrics:      NewMetrics(prometheus.NewRegistry()),
	})
}
