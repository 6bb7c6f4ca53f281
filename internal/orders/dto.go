package orders

import (
	"time"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// ListFilter narrows the admin order listing. Zero values are ignored.
type ListFilter struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	From          *time.Time
	To            *time.Time
}

// ShippingInput sets the carrier tracking details of an order.
type ShippingInput struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
	Carrier        string `json:"shipping_carrier" validate:"required,max=100"`
}
