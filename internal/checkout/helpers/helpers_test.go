package helpers

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
)

func TestGenerateOrderNumber(t *testing.T) {
	now := time.UnixMilli(1760000000123)
	number := GenerateOrderNumber(now)
	require.Len(t, number, 20)
	assert.True(t, strings.HasPrefix(number, "ORD1760000000123"))
	assert.True(t, OrderNumberPattern.MatchString(number))
}

func TestFindOrderNumber(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{name: "plain", text: "ORD17600000001231234", want: "ORD17600000001231234", found: true},
		{name: "lowercase in memo", text: "MBVCB.123 thanh toan ord17600000001231234 ck", want: "ORD17600000001231234", found: true},
		{name: "too short", text: "ORD1760000000123", found: false},
		{name: "missing", text: "payment for order", found: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FindOrderNumber(tc.text)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestShippingFee(t *testing.T) {
	cfg := config.CheckoutConfig{ShippingFee: 30000}
	assert.EqualValues(t, 30000, ShippingFee(1_000_000, cfg))

	cfg.FreeShippingThreshold = 500000
	assert.EqualValues(t, 30000, ShippingFee(499999, cfg))
	assert.EqualValues(t, 0, ShippingFee(500000, cfg))
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(100000, 30000, 20000)
	assert.Equal(t, Totals{Subtotal: 100000, ShippingFee: 30000, DiscountAmount: 20000, Total: 110000}, totals)

	capped := ComputeTotals(50000, 30000, 80000)
	assert.EqualValues(t, 50000, capped.DiscountAmount)
	assert.EqualValues(t, 30000, capped.Total)

	assert.EqualValues(t, 0, ComputeTotals(100, 0, -5).DiscountAmount)
}
