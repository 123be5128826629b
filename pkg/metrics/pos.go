package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// POSMetrics instruments the terminal service.
type POSMetrics struct {
	checkoutAttempts *prometheus.CounterVec
	submitDuration   prometheus.Histogram
	stockDenials     *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	receiptFailures  *prometheus.CounterVec
}

// NewPOSMetrics registers the terminal metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPOSMetrics(reg prometheus.Registerer) *POSMetrics {
	if reg == nil {
		return &POSMetrics{}
	}
	checkoutAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_attempts_total",
		Help: "Checkout attempts by terminal state.",
	}, []string{"state"})
	submitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_checkout_submit_seconds",
		Help:    "Time spent submitting a sale to the backoffice.",
		Buckets: prometheus.DefBuckets,
	})
	stockDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_stock_denials_total",
		Help: "Cart mutations rejected by the stock guard.",
	}, []string{"operation"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_resolution_total",
		Help: "Product resolutions by the step that matched.",
	}, []string{"step"})
	receiptFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_receipt_failures_total",
		Help: "Receipt render requests that failed.",
	}, []string{"format"})
	reg.MustRegister(checkoutAttempts, submitDuration, stockDenials, resolutions, receiptFailures)
	return &POSMetrics{
		checkoutAttempts: checkoutAttempts,
		submitDuration:   submitDuration,
		stockDenials:     stockDenials,
		resolutions:      resolutions,
		receiptFailures:  receiptFailures,
	}
}

func (m *POSMetrics) IncCheckoutAttempt(state string) {
	if m == nil || m.checkoutAttempts == nil {
		return
	}
	m.checkoutAttempts.WithLabelValues(normalizeLabel(state)).Inc()
}

func (m *POSMetrics) ObserveSubmit(duration time.Duration) {
	if m == nil || m.submitDuration == nil {
		return
	}
	m.submitDuration.Observe(duration.Seconds())
}

func (m *POSMetrics) IncStockDenied(operation string) {
	if m == nil || m.stockDenials == nil {
		return
	}
	m.stockDenials.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *POSMetrics) IncResolution(step string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(step)).Inc()
}

func (m *POSMetrics) IncReceiptFailure(format string) {
	if m == nil || m.receiptFailures == nil {
		return
	}
	m.receiptFailures.WithLabelValues(normalizeLabel(format)).Inc()
}

// Handler exposes the registry over HTTP.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
