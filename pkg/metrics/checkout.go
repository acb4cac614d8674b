package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records saga outcomes, step latency and gateway selection.
type CheckoutMetrics struct {
	outcomes *prometheus.CounterVec
	steps    *prometheus.HistogramVec
	gateways *prometheus.CounterVec
	stock    *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Checkout saga runs by terminal state and failure kind.",
	}, []string{"state", "kind"})
	steps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_step_duration_seconds",
		Help:    "Duration of checkout saga network steps in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step", "gateway"})
	gateways := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_gateway_selected_total",
		Help: "Payment gateway selections at checkout entry.",
	}, []string{"gateway"})
	stock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_stock_checks_total",
		Help: "Stock checks by source and result.",
	}, []string{"source", "result"})
	reg.MustRegister(outcomes, steps, gateways, stock)
	return &CheckoutMetrics{
		outcomes: outcomes,
		steps:    steps,
		gateways: gateways,
		stock:    stock,
	}
}

// IncOutcome counts a saga run that stopped in state.
func (c *CheckoutMetrics) IncOutcome(state, kind string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(normalizeLabel(state), normalizeLabel(kind)).Inc()
}

// ObserveStep records the duration of one network step.
func (c *CheckoutMetrics) ObserveStep(step, gateway string, duration time.Duration) {
	if c == nil || c.steps == nil {
		return
	}
	c.steps.WithLabelValues(normalizeLabel(step), normalizeLabel(gateway)).Observe(duration.Seconds())
}

// IncGatewaySelected counts the gateway picked for a new attempt.
func (c *CheckoutMetrics) IncGatewaySelected(gateway string) {
	if c == nil || c.gateways == nil {
		return
	}
	c.gateways.WithLabelValues(normalizeLabel(gateway)).Inc()
}

// IncStockCheck counts a local or remote stock decision.
func (c *CheckoutMetrics) IncStockCheck(source, result string) {
	if c == nil || c.stock == nil {
		return
	}
	c.stock.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
