package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingComputeTotal counts pricing pipeline runs by outcome.
	PricingComputeTotal *prometheus.CounterVec
	// CheckoutValidationTotal counts validator gate decisions by stage and outcome.
	CheckoutValidationTotal *prometheus.CounterVec
	// CheckoutSubmitTotal counts checkout submissions by outcome.
	CheckoutSubmitTotal *prometheus.CounterVec
	// CouponLookupTotal counts coupon lookups by store and outcome.
	CouponLookupTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_compute_total",
			Help:      "Count of pricing pipeline runs by outcome.",
		}, []string{"result"})
		CheckoutValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_validation_total",
			Help:      "Count of checkout validation decisions by stage and outcome.",
		}, []string{"stage", "result"})
		CheckoutSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submit_total",
			Help:      "Count of checkout submissions by outcome.",
		}, []string{"result"})
		CouponLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_lookup_total",
			Help:      "Count of coupon lookups by store and outcome.",
		}, []string{"source", "result"})

		PricingComputeTotal = registerCounterVec(reg, PricingComputeTotal)
		CheckoutValidationTotal = registerCounterVec(reg, CheckoutValidationTotal)
		CheckoutSubmitTotal = registerCounterVec(reg, CheckoutSubmitTotal)
		CouponLookupTotal = registerCounterVec(reg, CouponLookupTotal)
	})
}

// Inc increments vec when it has been registered. Components call it
// unconditionally so tests without metrics wiring keep working.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
			return c
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
	return c
}
