// Package app wires the storage, polling, cron, and gateway subsystems and
// runs them until a shutdown signal arrives.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/cron"
	"github.com/pulsewatch/pulsewatch/internal/gateway"
	"github.com/pulsewatch/pulsewatch/internal/poller"
	"github.com/pulsewatch/pulsewatch/internal/store"
	"github.com/pulsewatch/pulsewatch/internal/tracing"
	"github.com/pulsewatch/pulsewatch/internal/vk"
)

// shutdownTimeout bounds graceful HTTP shutdown and trace flushing.
const shutdownTimeout = 10 * time.Second

// Run starts pulsewatch with the given configuration and blocks until ctx
// is cancelled or a SIGINT/SIGTERM arrives. Startup is strict: storage,
// reconciliation, cron, and the listener must all come up or Run fails.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	}, version)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fetcher := vk.New(vk.Config{
		Token:   cfg.VK.Token,
		Domain:  cfg.VK.Domain,
		Version: cfg.VK.Version,
		Timeout: cfg.Poll.FetchTimeout.Std(),
	})

	hub := gateway.NewHub()
	gate := poller.NewGate(st, cfg.Poll.Interval.Std())
	sched := poller.New(st, st, fetcher, gate, poller.Options{
		Interval:     cfg.Poll.Interval.Std(),
		FetchTimeout: cfg.Poll.FetchTimeout.Std(),
		Logger:       logger,
		Metrics:      poller.NewMetrics(registry),
		OnSample:     hub.Publish,
	})
	defer sched.Close()

	// Rebuild the job set from persisted windows before serving anything.
	// Failing to enumerate windows here is fatal.
	if _, err := sched.Reconcile(ctx); err != nil {
		return fmt.Errorf("app: startup reconcile: %w", err)
	}

	var sweeper *cron.Scheduler
	if cfg.Sweep.Enabled {
		sweeper = cron.NewScheduler(logger)
		if err := sweeper.RegisterJob(&cron.ReconcileSweepJob{
			Poller:       sched,
			Logger:       logger,
			ScheduleExpr: cfg.Sweep.Schedule,
		}); err != nil {
			return err
		}
		if err := sweeper.Start(); err != nil {
			return err
		}
	}

	gw := gateway.New(gateway.Config{
		Bind:         cfg.Bind,
		AuthToken:    cfg.Auth.Token,
		WindowPeriod: cfg.Poll.WindowPeriod.Std(),
	}, logger, st, fetcher, gate, sched, hub, registry)

	if err := gw.Start(); err != nil {
		return err
	}

	logger.Info("app: pulsewatch started",
		"version", version,
		"bind", cfg.Bind,
		"poll_interval", cfg.Poll.Interval.Std(),
		"window_period", cfg.Poll.WindowPeriod.Std(),
	)

	<-ctx.Done()
	logger.Info("app: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Warn("app: gateway shutdown", "error", err)
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.Warn("app: cron shutdown", "error", err)
		}
	}
	sched.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("app: tracing shutdown", "error", err)
	}
	return nil
}
