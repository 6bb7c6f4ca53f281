package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// InventoryTransaction is an append-only ledger row. BalanceAfter is the stock value right after the entry.
// Seq is assigned by the database and orders the entries of one stock row.
type InventoryTransaction struct {
	ID              uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID                      `gorm:"column:product_id;type:uuid;not null;index:idx_inventory_tx_stock,priority:1"`
	VariantID       *uuid.UUID                     `gorm:"column:variant_id;type:uuid;index:idx_inventory_tx_stock,priority:2"`
	TransactionType enums.InventoryTransactionType `gorm:"column:transaction_type;type:inventory_transaction_type;not null"`
	Quantity        int                            `gorm:"column:quantity;not null"`
	UnitCost        *int64                         `gorm:"column:unit_cost"`
	TotalCost       *int64                         `gorm:"column:total_cost"`
	ReferenceType   *enums.ReferenceType           `gorm:"column:reference_type;type:text"`
	ReferenceID     *uuid.UUID                     `gorm:"column:reference_id;type:uuid;index"`
	BalanceAfter    int                            `gorm:"column:balance_after;not null"`
	Notes           *string                        `gorm:"column:notes"`
	CreatedBy       *uuid.UUID                     `gorm:"column:created_by;type:uuid"`
	Seq             int64                          `gorm:"column:seq;->;index:idx_inventory_tx_stock,priority:3"`
	CreatedAt       time.Time                      `gorm:"column:created_at;autoCreateTime"`
}

func (t *InventoryTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
