package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics tracks provider circuit breakers. State values are
// 0 closed, 1 half-open, 2 open.
type BreakerMetrics struct {
	service     string
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func NewBreakerMetrics(registerer prometheus.Registerer, service string) *BreakerMetrics {
	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider operation.",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by target state.",
		},
		[]string{"service", "operation", "to"},
	)
	registerer.MustRegister(state, transitions)

	return &BreakerMetrics{service: service, state: state, transitions: transitions}
}

// ObserveTransition takes state names as printed by the breaker.
func (m *BreakerMetrics) ObserveTransition(operation, to string) {
	value := 0.0
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.state.WithLabelValues(m.service, operation).Set(value)
	m.transitions.WithLabelValues(m.service, operation, to).Inc()
}
