package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors live on the default registry, which cmd/api serves on
// /metrics. Every series is labelled by the guarded dependency.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	BreakerRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "breaker",
			Name:      "rejected_total",
			Help:      "Calls failed fast because the breaker was open",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerRejected)
}
