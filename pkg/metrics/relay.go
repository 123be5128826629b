package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics records outbox relay outcomes per event type.
type RelayMetrics struct {
	duration    *prometheus.HistogramVec
	published   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	undelivered prometheus.Gauge
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_relay_duration_seconds",
		Help:    "Duration of outbox event handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_published_total",
		Help: "Outbox events handled successfully.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_failed_total",
		Help: "Outbox events whose handling failed.",
	}, []string{"event_type", "terminal"})
	undelivered := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_relay_undelivered",
		Help: "Outbox rows not yet delivered, including rows parked after their last attempt.",
	})
	reg.MustRegister(duration, published, failed, undelivered)
	return &RelayMetrics{duration: duration, published: published, failed: failed, undelivered: undelivered}
}

func (r *RelayMetrics) ObserveDuration(eventType string, d time.Duration) {
	if r == nil || r.duration == nil {
		return
	}
	r.duration.WithLabelValues(normalizeLabel(eventType)).Observe(d.Seconds())
}

func (r *RelayMetrics) IncPublished(eventType string) {
	if r == nil || r.published == nil {
		return
	}
	r.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed counts a failure; terminal marks rows that will not be retried.
func (r *RelayMetrics) IncFailed(eventType string, terminal bool) {
	if r == nil || r.failed == nil {
		return
	}
	label := "false"
	if terminal {
		label = "true"
	}
	r.failed.WithLabelValues(normalizeLabel(eventType), label).Inc()
}

func (r *RelayMetrics) SetUndelivered(n int64) {
	if r == nil || r.undelivered == nil {
		return
	}
	r.undelivered.Set(float64(n))
}
