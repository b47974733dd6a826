package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Pinger probes the remote authority's health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityWatcher tracks whether the authority is reachable and emits a
// sync trigger whenever the station transitions back online. Manual and
// lifecycle triggers (startup, operator action) funnel through Notify.
type ConnectivityWatcher struct {
	pinger   Pinger
	interval time.Duration
	online   atomic.Bool
	triggers chan struct{}
}

func NewConnectivityWatcher(pinger Pinger, interval time.Duration) *ConnectivityWatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	w := &ConnectivityWatcher{
		pinger:   pinger,
		interval: interval,
		triggers: make(chan struct{}, 1),
	}
	// Assume online until a probe or a transport failure says otherwise.
	w.online.Store(true)
	return w
}

func (w *ConnectivityWatcher) Online() bool {
	return w.online.Load()
}

// Triggers is the outbox's sync signal source.
func (w *ConnectivityWatcher) Triggers() <-chan struct{} {
	return w.triggers
}

// SetOnline records the current reachability. An offline-to-online transition
// fires a sync trigger.
func (w *ConnectivityWatcher) SetOnline(online bool) {
	was := w.online.Swap(online)
	if !was && online {
		slog.Info("connectivity restored, triggering outbox sync")
		w.Notify()
	} else if was && !online {
		slog.Warn("connectivity lost")
	}
}

// Notify queues one sync trigger without blocking. Coalesces with any trigger
// already pending.
func (w *ConnectivityWatcher) Notify() {
	select {
	case w.triggers <- struct{}{}:
	default:
	}
}

// Run probes the authority on a ticker until ctx is cancelled.
func (w *ConnectivityWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, w.interval)
			err := w.pinger.Ping(probeCtx)
			cancel()
			w.SetOnline(err == nil)
		}
	}
}
