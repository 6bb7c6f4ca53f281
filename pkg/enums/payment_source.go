package enums

import "fmt"

// PaymentSource identifies which reconciliation entry point confirmed a payment.
type PaymentSource string

const (
	PaymentSourceManual  PaymentSource = "manual"
	PaymentSourceWebhook PaymentSource = "webhook"
	PaymentSourcePoll    PaymentSource = "poll"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceManual,
	PaymentSourceWebhook,
	PaymentSourcePoll,
}

// String implements fmt.Stringer.
func (s PaymentSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known payment source.
func (s PaymentSource) IsValid() bool {
	for _, candidate := range validPaymentSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentSource converts raw input into a PaymentSource.
func ParsePaymentSource(value string) (PaymentSource, error) {
	for _, candidate := range validPaymentSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment source %q", value)
}
