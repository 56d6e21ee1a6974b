package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout attempt outcomes and per-step latency.
type CheckoutMetrics struct {
	attempts *prometheus.CounterVec
	steps    *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by final outcome.",
	}, []string{"outcome"})
	steps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_step_duration_seconds",
		Help:    "Duration of each checkout step in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	reg.MustRegister(attempts, steps)
	return &CheckoutMetrics{
		attempts: attempts,
		steps:    steps,
	}
}

// IncOutcome counts a finished attempt (succeeded, failed, declined, malformed ...).
func (c *CheckoutMetrics) IncOutcome(outcome string) {
	if c == nil || c.attempts == nil {
		return
	}
	c.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveStep records how long a named step took.
func (c *CheckoutMetrics) ObserveStep(step string, duration time.Duration) {
	if c == nil || c.steps == nil {
		return
	}
	c.steps.WithLabelValues(normalizeLabel(step)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
