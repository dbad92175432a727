package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records outcomes of payment gateway calls.
type PaymentMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewPaymentMetrics registers the gateway metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_outcomes",
		Help: "Payment gateway call outcomes by operation and result.",
	}, []string{"operation", "result"})
	reg.MustRegister(duration, outcomes)
	return &PaymentMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// ObserveCall records the duration and result of a gateway call.
func (p *PaymentMetrics) ObserveCall(operation, result string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	p.duration.WithLabelValues(op).Observe(duration.Seconds())
	p.outcomes.WithLabelValues(op, normalizeLabel(result)).Inc()
}
