package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"checkin-station/services"
)

var (
	scanVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_verifications_total",
			Help: "Ticket verifications by outcome",
		},
		[]string{"method", "result"},
	)

	outboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_items_total",
			Help: "Current outbox depth per status",
		},
		[]string{"status"},
	)

	outboxSyncPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_sync_passes_total",
			Help: "Completed outbox sync passes",
		},
	)

	outboxSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_sync_duration_seconds",
			Help:    "Duration of outbox sync passes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// RecordVerification counts one verification outcome.
func RecordVerification(method, result string) {
	scanVerifications.WithLabelValues(method, result).Inc()
}

// ObserveSyncPass records one completed outbox sync.
func ObserveSyncPass(d time.Duration) {
	outboxSyncPasses.Inc()
	outboxSyncDuration.Observe(d.Seconds())
}

type Monitor struct {
	outbox *services.OutboxService
}

func NewMonitor(outbox *services.OutboxService) *Monitor {
	monitor := &Monitor{outbox: outbox}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.collectOutboxMetrics(ctx)
		cancel()

		goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

func (m *Monitor) collectOutboxMetrics(ctx context.Context) {
	stats, err := m.outbox.Stats(ctx)
	if err != nil {
		slog.Warn("outbox metrics collection failed", "error", err)
		return
	}

	outboxDepth.WithLabelValues("pending").Set(float64(stats.Pending))
	outboxDepth.WithLabelValues("synced").Set(float64(stats.Synced))
	outboxDepth.WithLabelValues("failed").Set(float64(stats.Failed))
}
