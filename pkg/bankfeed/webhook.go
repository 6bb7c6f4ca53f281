package bankfeed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const transferTypeIn = "in"

// WebhookPayload is the body the provider pushes for every account movement.
type WebhookPayload struct {
	ID              json.Number     `json:"id" validate:"required"`
	Gateway         string          `json:"gateway"`
	TransactionDate string          `json:"transactionDate"`
	AccountNumber   string          `json:"accountNumber"`
	Code            *string         `json:"code"`
	Content         string          `json:"content"`
	TransferType    string          `json:"transferType" validate:"required"`
	TransferAmount  decimal.Decimal `json:"transferAmount"`
	Accumulated     decimal.Decimal `json:"accumulated"`
	ReferenceCode   string          `json:"referenceCode"`
	Description     string          `json:"description"`

	// Raw is the request body as delivered. Handlers set it after decoding.
	Raw json.RawMessage `json:"-"`
}

// Incoming reports whether the pushed movement credits the account.
func (p WebhookPayload) Incoming() bool {
	return strings.EqualFold(strings.TrimSpace(p.TransferType), transferTypeIn)
}

// ReceivedAt parses the transaction date, falling back to now when it is missing or malformed.
func (p WebhookPayload) ReceivedAt(now time.Time) time.Time {
	parsed, err := ParseTime(p.TransactionDate)
	if err != nil || parsed.IsZero() {
		return now.UTC()
	}
	return parsed
}

// Body returns the delivered bytes, or the re-encoded payload when none were kept.
func (p WebhookPayload) Body() json.RawMessage {
	if len(p.Raw) > 0 {
		return p.Raw
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return body
}

// SearchText joins the fields an order reference may appear in.
func (p WebhookPayload) SearchText() string {
	parts := []string{p.Content, p.Description}
	if p.Code != nil {
		parts = append(parts, *p.Code)
	}
	return strings.Join(parts, " ")
}
