package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

func TestGate_FalseAfterAppendTrueAfterStaleness(t *testing.T) {
	t.Parallel()

	const interval = 30 * time.Second

	clock := newFakeClock()
	fs := newFakeSamples(clock)
	gate := NewGate(fs, interval)
	ctx := context.Background()

	// No samples yet: a job is needed.
	ok, err := gate.ShouldSchedule(ctx, 1)
	if err != nil {
		t.Fatalf("ShouldSchedule empty: %v", err)
	}
	if !ok {
		t.Error("gate blocked a window with no samples")
	}

	if _, err := fs.Append(ctx, 1, store.Stats{Likes: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Immediately after an append the gate must hold.
	ok, err = gate.ShouldSchedule(ctx, 1)
	if err != nil {
		t.Fatalf("ShouldSchedule fresh: %v", err)
	}
	if ok {
		t.Error("gate passed right after a sample append")
	}

	// Still within the 2× interval threshold.
	clock.Advance(2*interval - time.Second)
	ok, err = gate.ShouldSchedule(ctx, 1)
	if err != nil {
		t.Fatalf("ShouldSchedule within threshold: %v", err)
	}
	if ok {
		t.Error("gate passed inside the 2x interval threshold")
	}

	// Past the threshold the sample is stale.
	clock.Advance(2 * time.Second)
	ok, err = gate.ShouldSchedule(ctx, 1)
	if err != nil {
		t.Fatalf("ShouldSchedule stale: %v", err)
	}
	if !ok {
		t.Error("gate blocked once the sample went stale")
	}
}

func TestGate_PropagatesStoreError(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	fs := newFakeSamples(clock)
	fs.recentErr = errors.New("store: database busy")
	gate := NewGate(fs, 30*time.Second)

	if _, err := gate.ShouldSchedule(context.Background(), 1); err == nil {
		t.Error("expected error from failing sample store")
	}
}
