// Package gateway exposes the HTTP boundary: opening and extending watches,
// reading sampled series, a live WebSocket stream, health, status, and
// Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulsewatch/pulsewatch/internal/poller"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Config holds gateway settings.
type Config struct {
	// Bind is the listen address, e.g. "127.0.0.1:8080".
	Bind string

	// AuthToken protects /status when non-empty.
	AuthToken string

	// WindowPeriod is the lifetime applied to created or extended windows.
	WindowPeriod time.Duration
}

// PollScheduler is the subset of poller.Scheduler the gateway drives.
type PollScheduler interface {
	Schedule(windowID int64) bool
	Len() int
	Snapshot() []poller.JobStatus
}

// Gateway is the HTTP server tying the request boundary to the core.
type Gateway struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.Store
	fetch     poller.Fetcher
	gate      *poller.Gate
	sched     PollScheduler
	hub       *Hub
	gatherer  prometheus.Gatherer
	tracer    trace.Tracer
	server    *http.Server
	startedAt time.Time
}

// New wires a Gateway. The hub receives live samples via the poll
// scheduler's OnSample hook; pass the same instance here so WebSocket
// subscribers see them.
func New(cfg Config, logger *slog.Logger, st *store.Store, fetch poller.Fetcher,
	gate *poller.Gate, sched PollScheduler, hub *Hub, gatherer prometheus.Gatherer) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		fetch:    fetch,
		gate:     gate,
		sched:    sched,
		hub:      hub,
		gatherer: gatherer,
		tracer:   otel.Tracer("pulsewatch/gateway"),
	}
}

// Start binds the listen address and serves in a background goroutine.
// A bind failure is returned synchronously.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.cfg.Bind)
	if err != nil {
		return errors.New("gateway: listen on " + g.cfg.Bind + ": " + err.Error())
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: server failed", "error", err)
		}
	}()

	g.logger.Info("gateway: listening", "addr", g.cfg.Bind)
	return nil
}

// Stop gracefully shuts the server down.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
