package metrics

import "github.com/prometheus/client_golang/prometheus"

// Checkout outcomes.
const (
	CheckoutCreated           = "created"
	CheckoutInsufficientStock = "insufficient_stock"
	CheckoutConcurrency       = "concurrency"
	CheckoutRejected          = "rejected"
	CheckoutError             = "error"
)

// Payment reconciliation results.
const (
	PaymentPaid             = "paid"
	PaymentAlreadyProcessed = "already_processed"
	PaymentRejected         = "rejected"
	PaymentError            = "error"
)

// OrderMetrics counts checkout, reconciliation and expiry outcomes.
type OrderMetrics struct {
	checkouts *prometheus.CounterVec
	payments  *prometheus.CounterVec
	expired   prometheus.Counter
	restored  prometheus.Counter
}

// NewOrderMetrics registers the order metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "orders_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "reconciliations_total",
		Help:      "Payment reconciliation attempts by source and result.",
	}, []string{"source", "result"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "expired_total",
		Help:      "Unpaid orders cancelled by the expiry sweep.",
	})
	restored := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "inventory_restores_total",
		Help:      "Orders whose reserved stock was returned.",
	})
	reg.MustRegister(checkouts, payments, expired, restored)
	return &OrderMetrics{
		checkouts: checkouts,
		payments:  payments,
		expired:   expired,
		restored:  restored,
	}
}

// IncCheckout records one checkout outcome.
func (m *OrderMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayment records one reconciliation attempt.
func (m *OrderMetrics) IncPayment(source, result string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

// AddExpired adds n swept orders.
func (m *OrderMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

// IncRestored records one inventory restore.
func (m *OrderMetrics) IncRestored() {
	if m == nil || m.restored == nil {
		return
	}
	m.restored.Inc()
}
