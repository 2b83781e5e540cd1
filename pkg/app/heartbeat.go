package app

import (
	"context"
	"sync"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/log"
)

const heartbeatInterval = time.Minute

// HeartbeatStore is implemented by *storage.Store.
type HeartbeatStore interface {
	SetHeartbeat(t time.Time) error
	GetHeartbeat() (time.Time, bool, error)
}

// heartbeat records a liveness timestamp so the next start can report how
// long the bot was down.
type heartbeat struct {
	store    HeartbeatStore
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newHeartbeat(store HeartbeatStore) *heartbeat {
	return &heartbeat{
		store:    store,
		interval: heartbeatInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// reportDowntime logs the gap since the last recorded heartbeat.
func (h *heartbeat) reportDowntime() {
	last, ok, err := h.store.GetHeartbeat()
	switch {
	case err != nil:
		log.DatabaseLogger().Warn("Failed to read last heartbeat", "err", err)
	case !ok:
		log.ApplicationLogger().Info("No previous heartbeat recorded")
	default:
		log.ApplicationLogger().Info("Previous run last seen", "at", last.UTC().Format(time.RFC3339), "downtime", h.now().Sub(last).Round(time.Second).String())
	}
}

func (h *heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return nil
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.beat()
	go h.loop(ctx, h.done)
	return nil
}

func (h *heartbeat) Stop(context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	h.beat()
	return nil
}

func (h *heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

func (h *heartbeat) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

func (h *heartbeat) beat() {
	if err := h.store.SetHeartbeat(h.now()); err != nil {
		log.DatabaseLogger().Warn("Failed to record heartbeat", "err", err)
	}
}
