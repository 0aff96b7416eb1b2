package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// subscriber channel buffer; a subscriber that falls this far behind the
// sample rate starts losing updates rather than blocking the poller.
const subscriberBuffer = 16

// Hub fans successful sample appends out to WebSocket subscribers, keyed by
// window id. Publish never blocks.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan store.Sample]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan store.Sample]struct{})}
}

// Subscribe registers a new subscriber for windowID.
func (h *Hub) Subscribe(windowID int64) chan store.Sample {
	ch := make(chan store.Sample, subscriberBuffer)
	h.mu.Lock()
	if h.subs[windowID] == nil {
		h.subs[windowID] = make(map[chan store.Sample]struct{})
	}
	h.subs[windowID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber previously returned by Subscribe.
func (h *Hub) Unsubscribe(windowID int64, ch chan store.Sample) {
	h.mu.Lock()
	if set, ok := h.subs[windowID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, windowID)
		}
	}
	h.mu.Unlock()
}

// Publish delivers a sample to all subscribers of its window. Slow
// subscribers are skipped, not waited on.
func (h *Hub) Publish(smp store.Sample) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[smp.WindowID] {
		select {
		case ch <- smp:
		default:
		}
	}
}

// handleStream upgrades to a WebSocket, replays the stored samples for the
// watch, then pushes each new sample as it is captured. Delivery is
// at-least-once: a sample captured during the replay may appear twice.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid watch id", http.StatusBadRequest)
			return
		}
		if _, err := g.store.Get(ctx, id); err != nil {
			if errors.Is(err, store.ErrWindowNotFound) {
				http.Error(w, "watch not found", http.StatusNotFound)
				return
			}
			g.writeStoreError(w, "get watch", err)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusInternalError, "unexpected close") }()

		// Subscribe before replay so no sample falls between the two.
		ch := g.hub.Subscribe(id)
		defer g.hub.Unsubscribe(id, ch)

		replay, err := g.store.ListByWindow(ctx, id)
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "replay failed")
			return
		}
		for _, smp := range replay {
			if writeSample(ctx, conn, smp) != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case smp := <-ch:
				if writeSample(ctx, conn, smp) != nil {
					return
				}
			}
		}
	}
}

func writeSample(ctx context.Context, conn *websocket.Conn, smp store.Sample) error {
	payload, err := json.Marshal(SampleResponse{
		Likes:      smp.Stats.Likes,
		Comments:   smp.Stats.Comments,
		Reposts:    smp.Stats.Reposts,
		Views:      smp.Stats.Views,
		CapturedAt: smp.CapturedAt,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
