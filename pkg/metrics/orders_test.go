package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOrderMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncCheckout(CheckoutCreated)
	m.IncCheckout(CheckoutCreated)
	m.IncCheckout(CheckoutInsufficientStock)
	m.IncPayment("webhook", PaymentPaid)
	m.IncPayment("webhook", PaymentAlreadyProcessed)
	m.AddExpired(3)
	m.AddExpired(0)
	m.IncRestored()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues(CheckoutCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues(CheckoutInsufficientStock)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("webhook", PaymentAlreadyProcessed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restored))
}

func TestNilOrderMetricsAreSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncCheckout(CheckoutCreated)
	m.IncPayment("manual", PaymentPaid)
	m.AddExpired(1)
	m.IncRestored()

	NewOrderMetrics(nil).IncCheckout(CheckoutError)
}
