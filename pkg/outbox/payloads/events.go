package payloads

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLine is one purchased item as rendered in a notification.
type NotificationLine struct {
	ProductName string  `json:"product_name"`
	VariantName *string `json:"variant_name,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
	TotalPrice  int64   `json:"total_price"`
}

// NewOrderNotification asks downstream channels to announce a freshly placed order.
type NewOrderNotification struct {
	OrderID        uuid.UUID          `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	CustomerName   string             `json:"customer_name"`
	CustomerEmail  string             `json:"customer_email"`
	CustomerPhone  string             `json:"customer_phone"`
	ShippingCity   string             `json:"shipping_city"`
	Subtotal       int64              `json:"subtotal"`
	ShippingFee    int64              `json:"shipping_fee"`
	DiscountAmount int64              `json:"discount_amount"`
	DiscountCode   *string            `json:"discount_code,omitempty"`
	TotalAmount    int64              `json:"total_amount"`
	Items          []NotificationLine `json:"items"`
	OrderDate      time.Time          `json:"order_date"`
}

// OrderConfirmedNotification is sent once payment has confirmed the order.
type OrderConfirmedNotification struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	TotalAmount   int64     `json:"total_amount"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}
