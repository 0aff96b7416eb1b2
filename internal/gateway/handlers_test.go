package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsewatch/pulsewatch/internal/poller"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// fakeFetcher answers every Stats call with a fixed result.
type fakeFetcher struct {
	stats store.Stats
	err   error
}

func (f *fakeFetcher) Stats(_ context.Context, _ string) (store.Stats, error) {
	return f.stats, f.err
}

// fakeScheduler records Schedule calls without spawning real jobs.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []int64
	snapshot  []poller.JobStatus
}

func (f *fakeScheduler) Schedule(windowID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, windowID)
	return true
}

func (f *fakeScheduler) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scheduled)
}

func (f *fakeScheduler) Snapshot() []poller.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeScheduler) scheduledIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.scheduled))
	copy(out, f.scheduled)
	return out
}

type testGateway struct {
	gw    *Gateway
	store *store.Store
	fetch *fakeFetcher
	sched *fakeScheduler
	mux   http.Handler
}

func newTestGateway(t *testing.T, cfg Config) *testGateway {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "gw.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fetch := &fakeFetcher{stats: store.Stats{Likes: 1, Views: 10}}
	sched := &fakeScheduler{}
	gate := poller.NewGate(st, 30*time.Second)

	if cfg.WindowPeriod == 0 {
		cfg.WindowPeriod = 5 * time.Minute
	}

	gw := New(cfg, logger, st, fetch, gate, sched, NewHub(), prometheus.NewRegistry())
	return &testGateway{
		gw:    gw,
		store: st,
		fetch: fetch,
		sched: sched,
		mux:   gw.buildRouter(),
	}
}

func (tg *testGateway) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	tg.mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateWatch_OpensWindowAndSchedules(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	rec := tg.do(t, http.MethodPost, "/api/watches",
		`{"link": "https://vk.com/wall-1_45616", "prolong": false}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp WatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PostID != "-1_45616" {
		t.Errorf("post_id = %q, want -1_45616", resp.PostID)
	}
	if !resp.WindowEnd.After(resp.WindowStart) {
		t.Errorf("window_end %v not after window_start %v", resp.WindowEnd, resp.WindowStart)
	}

	ids := tg.sched.scheduledIDs()
	if len(ids) != 1 || ids[0] != resp.WatchID {
		t.Errorf("scheduled = %v, want [%d]", ids, resp.WatchID)
	}
}

func TestCreateWatch_RepeatRequestSkipsScheduleWhenSampleFresh(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	body := `{"link": "https://vk.com/wall-1_45616"}`
	rec := tg.do(t, http.MethodPost, "/api/watches", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	var first WatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}

	// A fresh sample makes the dedup gate refuse a second job.
	if _, err := tg.store.Append(context.Background(), first.WatchID, store.Stats{Likes: 1}); err != nil {
		t.Fatal(err)
	}

	rec = tg.do(t, http.MethodPost, "/api/watches", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d", rec.Code)
	}
	var second WatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.WatchID != first.WatchID {
		t.Errorf("second watch_id = %d, want reuse of %d", second.WatchID, first.WatchID)
	}
	if n := len(tg.sched.scheduledIDs()); n != 1 {
		t.Errorf("schedule calls = %d, want 1", n)
	}
}

func TestCreateWatch_ProlongMovesWindowEnd(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	rec := tg.do(t, http.MethodPost, "/api/watches",
		`{"link": "https://vk.com/wall-1_45616"}`, nil)
	var first WatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}

	rec = tg.do(t, http.MethodPost, "/api/watches",
		`{"link": "https://vk.com/wall-1_45616", "prolong": true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prolong request status = %d", rec.Code)
	}
	var second WatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if second.WatchID != first.WatchID {
		t.Fatalf("prolong created a new watch %d, want %d", second.WatchID, first.WatchID)
	}
	if second.WindowEnd.Before(first.WindowEnd) {
		t.Errorf("window_end moved backwards: %v -> %v", first.WindowEnd, second.WindowEnd)
	}
}

func TestCreateWatch_RejectsBadInput(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	cases := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{`},
		{"wrong host", `{"link": "https://example.com/wall-1_1"}`},
		{"bare prefix", `{"link": "https://vk.com/wall"}`},
		{"empty link", `{"link": ""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := tg.do(t, http.MethodPost, "/api/watches", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if n := len(tg.sched.scheduledIDs()); n != 0 {
		t.Errorf("schedule calls = %d, want 0", n)
	}
}

func TestCreateWatch_FetchFailureIsBadGateway(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})
	tg.fetch.err = errors.New("connect timeout")

	rec := tg.do(t, http.MethodPost, "/api/watches",
		`{"link": "https://vk.com/wall-1_45616"}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestCreateWatch_AllZeroStatsIsNotFound(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})
	tg.fetch.stats = store.Stats{}

	rec := tg.do(t, http.MethodPost, "/api/watches",
		`{"link": "https://vk.com/wall-1_45616"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if n := len(tg.sched.scheduledIDs()); n != 0 {
		t.Errorf("schedule calls = %d, want 0", n)
	}
}

func TestGetWatch_UnknownIDIs404(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	rec := tg.do(t, http.MethodGet, "/api/watches/9999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = tg.do(t, http.MethodGet, "/api/watches/not-a-number", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetWatch_NoSamplesYieldsEmptyArray(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	w, err := tg.store.GetOrCreate(context.Background(), "-1_7", false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	rec := tg.do(t, http.MethodGet, "/api/watches/"+strconv.FormatInt(w.ID, 10), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"samples":[]`) {
		t.Errorf("body = %s, want empty samples array (not null)", rec.Body.String())
	}
}

func TestGetWatch_ReturnsSamplesInOrder(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	ctx := context.Background()
	w, err := tg.store.GetOrCreate(ctx, "-1_8", false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(1); i <= 3; i++ {
		if _, err := tg.store.Append(ctx, w.ID, store.Stats{Likes: i}); err != nil {
			t.Fatal(err)
		}
	}

	rec := tg.do(t, http.MethodGet, "/api/watches/"+strconv.FormatInt(w.ID, 10), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp WatchDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(resp.Samples))
	}
	for i, smp := range resp.Samples {
		if smp.Likes != int64(i+1) {
			t.Errorf("sample %d likes = %d, want %d", i, smp.Likes, i+1)
		}
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	rec := tg.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field = %q, want ok", resp.Status)
	}
}

func TestStatus_AuthRequiredWhenTokenSet(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{AuthToken: "secret"})

	rec := tg.do(t, http.MethodGet, "/status", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", rec.Code)
	}

	rec = tg.do(t, http.MethodGet, "/status", "", http.Header{
		"Authorization": []string{"Bearer wrong"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	rec = tg.do(t, http.MethodGet, "/status", "", http.Header{
		"Authorization": []string{"Bearer secret"},
	})
	if rec.Code != http.StatusOK {
		t.Errorf("right token: status = %d, want 200", rec.Code)
	}
}

func TestStatus_OpenWithoutToken(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	rec := tg.do(t, http.MethodGet, "/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, Config{})

	rec := tg.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
