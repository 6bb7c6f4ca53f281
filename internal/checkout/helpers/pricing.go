package helpers

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
)

// OrderNumberPattern matches an order reference anywhere in free text, such as a bank transfer memo.
var OrderNumberPattern = regexp.MustCompile(`(?i)ORD\d{17}`)

// GenerateOrderNumber builds ORD + 13 digit unix millis + 4 random digits. Collisions are
// left to the unique index.
func GenerateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%013d%04d", now.UnixMilli(), rand.IntN(10000))
}

// FindOrderNumber extracts the first order reference in text, upper-cased.
func FindOrderNumber(text string) (string, bool) {
	match := OrderNumberPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.ToUpper(match), true
}

// ShippingFee charges the flat fee unless the subtotal reaches the free-shipping threshold.
// A zero threshold disables the waiver.
func ShippingFee(subtotal int64, cfg config.CheckoutConfig) int64 {
	if cfg.FreeShippingThreshold > 0 && subtotal >= cfg.FreeShippingThreshold {
		return 0
	}
	return cfg.ShippingFee
}

// Totals is the money breakdown of one order, in minor units.
type Totals struct {
	Subtotal       int64
	ShippingFee    int64
	DiscountAmount int64
	Total          int64
}

// ComputeTotals caps the discount at the subtotal so shipping is always charged in full.
func ComputeTotals(subtotal, shipping, discount int64) Totals {
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return Totals{
		Subtotal:       subtotal,
		ShippingFee:    shipping,
		DiscountAmount: discount,
		Total:          subtotal + shipping - discount,
	}
}
