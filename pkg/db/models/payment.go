package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Payment records a reconciled transfer. At most one row exists per order and per provider transaction.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:payments_order_id_key"`
	Amount          int64               `gorm:"column:amount;not null"`
	TransactionID   string              `gorm:"column:transaction_id;not null;uniqueIndex:payments_transaction_id_key"`
	Source          enums.PaymentSource `gorm:"column:source;type:payment_source;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	GatewayResponse json.RawMessage     `gorm:"column:gateway_response;type:jsonb"`
	CompletedAt     *time.Time          `gorm:"column:completed_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
