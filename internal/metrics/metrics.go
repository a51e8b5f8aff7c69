package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instance *Metrics
	once     sync.Once
)

// Metrics holds the watcher's Prometheus instrumentation, served by the
// control server at /metrics.
type Metrics struct {
	PollCyclesTotal   prometheus.Counter
	CycleDuration     prometheus.Histogram
	RelayPollsTotal   *prometheus.CounterVec
	RelayEventsTotal  *prometheus.CounterVec
	WatermarkSeconds  prometheus.Gauge
	NotificationsSent prometheus.Counter
	CooldownSkips     prometheus.Counter
	SendFailures      prometheus.Counter
}

// Get returns the process-wide metrics singleton.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.PollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_watcher_poll_cycles_total",
		Help: "Total number of completed poll cycles",
	})

	m.CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_watcher_cycle_duration_seconds",
		Help:    "Poll cycle duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})

	m.RelayPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_watcher_relay_polls_total",
		Help: "Relay polls by endpoint and outcome",
	}, []string{"relay", "outcome"})

	m.RelayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_watcher_relay_events_total",
		Help: "Qualifying events observed per relay",
	}, []string{"relay"})

	m.WatermarkSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_watcher_watermark_seconds",
		Help: "Current watermark as unix epoch seconds",
	})

	m.NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_watcher_notifications_sent_total",
		Help: "Wake-up notifications dispatched",
	})

	m.CooldownSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_watcher_notifications_skipped_total",
		Help: "Notification triggers skipped by the cooldown window",
	})

	m.SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_watcher_notification_send_failures_total",
		Help: "Notification dispatch attempts rejected by the sender",
	})

	return m
}
