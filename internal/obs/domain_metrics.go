package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by operation.
	CartMutationsTotal *prometheus.CounterVec
	// OrdersPlacedTotal counts placed orders by currency and shipping type.
	OrdersPlacedTotal *prometheus.CounterVec
	// TaxLookupsTotal counts office tax lookups by whether the destination matched the table.
	TaxLookupsTotal *prometheus.CounterVec
	// GateLoginsTotal counts gate login attempts by outcome.
	GateLoginsTotal *prometheus.CounterVec
	// OrderValue records placed order totals in the order currency.
	OrderValue *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation.",
		}, []string{"op"})
		OrdersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Count of placed orders.",
		}, []string{"currency", "shipping_type"})
		TaxLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tax_lookups_total",
			Help:      "Count of office tax rate lookups by result.",
		}, []string{"result"})
		GateLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_logins_total",
			Help:      "Count of gate login attempts by result.",
		}, []string{"result"})
		OrderValue = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_value",
			Help:      "Distribution of placed order totals.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"currency"})

		CartMutationsTotal = register(reg, CartMutationsTotal)
		OrdersPlacedTotal = register(reg, OrdersPlacedTotal)
		TaxLookupsTotal = register(reg, TaxLookupsTotal)
		GateLoginsTotal = register(reg, GateLoginsTotal)
		OrderValue = register(reg, OrderValue)
	})
}

// CountCartMutation increments CartMutationsTotal when domain metrics are registered.
func CountCartMutation(op string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(op).Inc()
	}
}

// CountOrderPlaced records a placed order when domain metrics are registered.
func CountOrderPlaced(currency, shippingType string, total float64) {
	if OrdersPlacedTotal != nil {
		OrdersPlacedTotal.WithLabelValues(currency, shippingType).Inc()
	}
	if OrderValue != nil {
		OrderValue.WithLabelValues(currency).Observe(total)
	}
}

// CountTaxLookup records whether an office lookup matched the tax table.
func CountTaxLookup(matched bool) {
	if TaxLookupsTotal == nil {
		return
	}
	result := "fallback"
	if matched {
		result = "matched"
	}
	TaxLookupsTotal.WithLabelValues(result).Inc()
}

// CountGateLogin records a gate login outcome.
func CountGateLogin(result string) {
	if GateLoginsTotal != nil {
		GateLoginsTotal.WithLabelValues(result).Inc()
	}
}
