package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus metrics. A nil *Collector is a
// valid no-op, so components can be built without metrics in tests.
type Collector struct {
	reg prometheus.Gatherer

	sessionsActive  prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec

	ticks        prometheus.Counter
	tickFailures prometheus.Counter
	tickDuration prometheus.Histogram

	alerts *prometheus.CounterVec

	deliveries  prometheus.Counter
	drops       prometheus.Counter
	connections prometheus.Gauge

	notifications prometheus.Counter
}

// NewCollector registers every metric on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration on the default registerer.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		reg: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrace_sessions_active",
			Help: "Current number of active tracking sessions",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrace_sessions_started_total",
			Help: "Total number of tracking sessions started",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livetrace_sessions_ended_total",
			Help: "Total number of tracking sessions ended, by final status",
		}, []string{"status"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrace_ticks_total",
			Help: "Total number of session update cycles",
		}),
		tickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrace_tick_failures_total",
			Help: "Total number of failed session update cycles",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livetrace_tick_duration_seconds",
			Help:    "Session update cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livetrace_alerts_total",
			Help: "Total number of alerts raised",
		}, []string{"type", "severity"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrace_broadcast_deliveries_total",
			Help: "Total number of events handed to subscriber connections",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrace_broadcast_drops_total",
			Help: "Total number of events dropped for slow or closed connections",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrace_connections",
			Help: "Current number of subscriber connections",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrace_notifications_appended_total",
			Help: "Total number of notifications stored",
		}),
	}

	reg.MustRegister(
		c.sessionsActive, c.sessionsStarted, c.sessionsEnded,
		c.ticks, c.tickFailures, c.tickDuration,
		c.alerts,
		c.deliveries, c.drops, c.connections,
		c.notifications,
	)
	return c
}

func (c *Collector) SetSessionsActive(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}

func (c *Collector) RecordSessionStarted() {
	if c == nil {
		return
	}
	c.sessionsStarted.Inc()
}

func (c *Collector) RecordSessionEnded(status string) {
	if c == nil {
		return
	}
	c.sessionsEnded.WithLabelValues(status).Inc()
}

func (c *Collector) RecordTick(seconds float64, failed bool) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.tickDuration.Observe(seconds)
	if failed {
		c.tickFailures.Inc()
	}
}

func (c *Collector) RecordAlert(alertType, severity string) {
	if c == nil {
		return
	}
	c.alerts.WithLabelValues(alertType, severity).Inc()
}

func (c *Collector) RecordDeliveries(delivered, dropped int) {
	if c == nil {
		return
	}
	c.deliveries.Add(float64(delivered))
	c.drops.Add(float64(dropped))
}

func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.connections.Set(float64(n))
}

func (c *Collector) RecordNotification() {
	if c == nil {
		return
	}
	c.notifications.Inc()
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
