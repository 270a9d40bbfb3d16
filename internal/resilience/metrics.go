package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker series are labelled by the guarded dependency, e.g. "catalog_cache".
var (
	DependencyState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dependency_breaker_state",
			Help: "Breaker state per guarded dependency (0 closed, 1 open, 2 half-open).",
		},
		[]string{"dependency"},
	)
	DependencyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_breaker_transitions_total",
			Help: "Breaker state changes per guarded dependency.",
		},
		[]string{"dependency", "from", "to"},
	)
	DependencyTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_breaker_trips_total",
			Help: "Times a dependency was cut off after too many failures.",
		},
		[]string{"dependency"},
	)
)

func init() {
	prometheus.MustRegister(DependencyState, DependencyTransitions, DependencyTrips)
}

func recordTransition(dependency string, from, to State) {
	if to == Open {
		DependencyTrips.WithLabelValues(dependency).Inc()
	}
	DependencyState.WithLabelValues(dependency).Set(float64(to))
	DependencyTransitions.WithLabelValues(dependency, from.String(), to.String()).Inc()
}
