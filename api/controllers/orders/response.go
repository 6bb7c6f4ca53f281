package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type OrderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        string              `json:"order_number"`
	UserID             uuid.UUID           `json:"user_id"`
	CustomerName       string              `json:"customer_name"`
	CustomerEmail      string              `json:"customer_email"`
	CustomerPhone      string              `json:"customer_phone"`
	ShippingAddress    string              `json:"shipping_address"`
	ShippingCity       string              `json:"shipping_city"`
	ShippingPostalCode *string             `json:"shipping_postal_code,omitempty"`
	Subtotal           int64               `json:"subtotal"`
	ShippingFee        int64               `json:"shipping_fee"`
	DiscountAmount     int64               `json:"discount_amount"`
	DiscountCode       *string             `json:"discount_code,omitempty"`
	TotalAmount        int64               `json:"total_amount"`
	Status             enums.OrderStatus   `json:"status"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	TrackingNumber     *string             `json:"tracking_number,omitempty"`
	ShippingCarrier    *string             `json:"shipping_carrier,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	OrderDate          time.Time           `json:"order_date"`
	ConfirmedAt        *time.Time          `json:"confirmed_at,omitempty"`
	ShippedAt          *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	Items              []OrderItemResponse `json:"items,omitempty"`
}

type OrderItemResponse struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name"`
	VariantName *string    `json:"variant_name,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	TotalPrice  int64      `json:"total_price"`
}

// NewOrderResponse maps an order and whatever items were loaded with it.
func NewOrderResponse(order *models.Order) OrderResponse {
	if order == nil {
		return OrderResponse{}
	}
	resp := OrderResponse{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		CustomerName:       order.CustomerName,
		CustomerEmail:      order.CustomerEmail,
		CustomerPhone:      order.CustomerPhone,
		ShippingAddress:    order.ShippingAddress,
		ShippingCity:       order.ShippingCity,
		ShippingPostalCode: order.ShippingPostalCode,
		Subtotal:           order.Subtotal,
		ShippingFee:        order.ShippingFee,
		DiscountAmount:     order.DiscountAmount,
		DiscountCode:       order.DiscountCode,
		TotalAmount:        order.TotalAmount,
		Status:             order.Status,
		PaymentStatus:      order.PaymentStatus,
		TrackingNumber:     order.TrackingNumber,
		ShippingCarrier:    order.ShippingCarrier,
		Notes:              order.Notes,
		OrderDate:          order.OrderDate,
		ConfirmedAt:        order.ConfirmedAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			ImageURL:    item.ImageURL,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	return resp
}

func newOrderPage(page pagination.Page[models.Order]) pagination.Page[OrderResponse] {
	items := make([]OrderResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, NewOrderResponse(&page.Items[i]))
	}
	return pagination.Page[OrderResponse]{Items: items, NextCursor: page.NextCursor}
}
