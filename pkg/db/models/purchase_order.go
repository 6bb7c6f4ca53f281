package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// PurchaseOrder is a supplier restock request.
type PurchaseOrder struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	PONumber     string                    `gorm:"column:po_number;not null;uniqueIndex"`
	SupplierName string                    `gorm:"column:supplier_name;not null"`
	Status       enums.PurchaseOrderStatus `gorm:"column:status;type:purchase_order_status;not null;default:'draft'"`
	TotalAmount  int64                     `gorm:"column:total_amount;not null;default:0"`
	Notes        *string                   `gorm:"column:notes"`
	ExpectedDate *time.Time                `gorm:"column:expected_date"`
	ReceivedDate *time.Time                `gorm:"column:received_date"`
	CreatedBy    *uuid.UUID                `gorm:"column:created_by;type:uuid"`
	Items        []PurchaseOrderItem       `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PurchaseOrder) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// PurchaseOrderItem tracks ordered versus received units for one product or variant.
type PurchaseOrderItem struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseOrderID  uuid.UUID  `gorm:"column:purchase_order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID        *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	QuantityOrdered  int        `gorm:"column:quantity_ordered;not null"`
	QuantityReceived int        `gorm:"column:quantity_received;not null;default:0"`
	UnitCost         int64      `gorm:"column:unit_cost;not null"`
	TotalCost        int64      `gorm:"column:total_cost;not null"`
}

func (i *PurchaseOrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// Remaining returns how many units are still expected.
func (i PurchaseOrderItem) Remaining() int {
	if i.QuantityReceived >= i.QuantityOrdered {
		return 0
	}
	return i.QuantityOrdered - i.QuantityReceived
}
