package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsewatch/pulsewatch/internal/poller"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// wallPrefix is the accepted link prefix; everything after it is the VK
// post identifier (e.g. "https://vk.com/wall-1_45616" → "-1_45616").
const wallPrefix = "https://vk.com/wall"

// CreateWatchRequest is the JSON body for POST /api/watches.
type CreateWatchRequest struct {
	Link    string `json:"link"`
	Prolong bool   `json:"prolong"`
}

// WatchResponse describes one observation window.
type WatchResponse struct {
	WatchID     int64     `json:"watch_id"`
	PostID      string    `json:"post_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// SampleResponse is one stored sample.
type SampleResponse struct {
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	Reposts    int64     `json:"reposts"`
	Views      int64     `json:"views"`
	CapturedAt time.Time `json:"captured_at"`
}

// WatchDetailResponse is the JSON body for GET /api/watches/{id}.
type WatchDetailResponse struct {
	WatchResponse
	Now     time.Time        `json:"now"`
	Samples []SampleResponse `json:"samples"`
}

// handleCreateWatch opens (or extends) a watch for a VK post and schedules
// a polling job unless a recent sample shows one is already attending.
func (g *Gateway) handleCreateWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req CreateWatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		postID, ok := strings.CutPrefix(req.Link, wallPrefix)
		if !ok || postID == "" {
			http.Error(w, "invalid VK link, expected "+wallPrefix+"...", http.StatusBadRequest)
			return
		}

		// Pre-validate the post before opening a window. This is the one
		// place an all-zero result is read as "post not found".
		stats, err := g.fetch.Stats(ctx, postID)
		if err != nil {
			g.logger.Warn("gateway: post validation fetch failed", "post_id", postID, "error", err)
			http.Error(w, "VK API unavailable", http.StatusBadGateway)
			return
		}
		if stats.IsZero() {
			http.Error(w, "post not found", http.StatusNotFound)
			return
		}

		window, err := g.store.GetOrCreate(ctx, postID, req.Prolong, g.cfg.WindowPeriod)
		if err != nil {
			g.writeStoreError(w, "create watch", err)
			return
		}

		shouldSchedule, err := g.gate.ShouldSchedule(ctx, window.ID)
		if err != nil {
			g.writeStoreError(w, "dedup check", err)
			return
		}
		if shouldSchedule {
			g.sched.Schedule(window.ID)
		}

		writeJSON(w, http.StatusOK, WatchResponse{
			WatchID:     window.ID,
			PostID:      window.PostID,
			WindowStart: window.WindowStart,
			WindowEnd:   window.WindowEnd,
		})
	}
}

// handleGetWatch returns a watch and its full sample series. A watch with
// no samples yet answers 200 with an empty array; an unknown watch id
// answers 404.
func (g *Gateway) handleGetWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid watch id", http.StatusBadRequest)
			return
		}

		window, err := g.store.Get(ctx, id)
		if errors.Is(err, store.ErrWindowNotFound) {
			http.Error(w, "watch not found", http.StatusNotFound)
			return
		}
		if err != nil {
			g.writeStoreError(w, "get watch", err)
			return
		}

		samples, err := g.store.ListByWindow(ctx, id)
		if err != nil {
			g.writeStoreError(w, "list samples", err)
			return
		}

		resp := WatchDetailResponse{
			WatchResponse: WatchResponse{
				WatchID:     window.ID,
				PostID:      window.PostID,
				WindowStart: window.WindowStart,
				WindowEnd:   window.WindowEnd,
			},
			Now:     time.Now().UTC(),
			Samples: make([]SampleResponse, 0, len(samples)),
		}
		for _, smp := range samples {
			resp.Samples = append(resp.Samples, SampleResponse{
				Likes:      smp.Stats.Likes,
				Comments:   smp.Stats.Comments,
				Reposts:    smp.Stats.Reposts,
				Views:      smp.Stats.Views,
				CapturedAt: smp.CapturedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:     "ok",
			ActiveJobs: g.sched.Len(),
		})
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64              `json:"uptime_seconds"`
	Jobs          []poller.JobStatus `json:"jobs"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			Jobs:          g.sched.Snapshot(),
		})
	}
}

// writeStoreError maps storage failures to status codes: lock-wait timeouts
// become 503 (caller decides whether to retry), everything else 500.
func (g *Gateway) writeStoreError(w http.ResponseWriter, op string, err error) {
	g.logger.Error("gateway: "+op+" failed", "error", err)
	if errors.Is(err, store.ErrBusy) {
		http.Error(w, "storage busy, retry later", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
