package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Order is the committed checkout. Customer and shipping fields are snapshots taken at creation.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber         string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	CustomerName        string              `gorm:"column:customer_name;not null"`
	CustomerEmail       string              `gorm:"column:customer_email;not null"`
	CustomerPhone       string              `gorm:"column:customer_phone;not null"`
	ShippingAddress     string              `gorm:"column:shipping_address;not null"`
	ShippingCity        string              `gorm:"column:shipping_city;not null"`
	ShippingPostalCode  *string             `gorm:"column:shipping_postal_code"`
	Subtotal            int64               `gorm:"column:subtotal;not null"`
	ShippingFee         int64               `gorm:"column:shipping_fee;not null;default:0"`
	DiscountAmount      int64               `gorm:"column:discount_amount;not null;default:0"`
	DiscountCode        *string             `gorm:"column:discount_code"`
	TotalAmount         int64               `gorm:"column:total_amount;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending';index"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending';index"`
	TrackingNumber      *string             `gorm:"column:tracking_number"`
	ShippingCarrier     *string             `gorm:"column:shipping_carrier"`
	Notes               *string             `gorm:"column:notes"`
	OrderDate           time.Time           `gorm:"column:order_date;not null;index"`
	ConfirmedAt         *time.Time          `gorm:"column:confirmed_at"`
	ShippedAt           *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at"`
	InventoryRestoredAt *time.Time          `gorm:"column:inventory_restored_at"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is an immutable price and name snapshot of one cart line.
type OrderItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ProductName string     `gorm:"column:product_name;not null"`
	VariantName *string    `gorm:"column:variant_name"`
	ImageURL    *string    `gorm:"column:image_url"`
	Quantity    int        `gorm:"column:quantity;not null"`
	UnitPrice   int64      `gorm:"column:unit_price;not null"`
	TotalPrice  int64      `gorm:"column:total_price;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
