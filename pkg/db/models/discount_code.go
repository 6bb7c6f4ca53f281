package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// DiscountCode is a redeemable code. UsedCount is only ever bumped by a conditional update.
type DiscountCode struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code           string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType   enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	DiscountValue  decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinOrderAmount int64              `gorm:"column:min_order_amount;not null;default:0"`
	MaxDiscount    *int64             `gorm:"column:max_discount"`
	UsageLimit     *int               `gorm:"column:usage_limit"`
	UsedCount      int                `gorm:"column:used_count;not null;default:0"`
	IsActive       bool               `gorm:"column:is_active;not null"`
	StartsAt       *time.Time         `gorm:"column:starts_at"`
	ExpiresAt      *time.Time         `gorm:"column:expires_at"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *DiscountCode) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}
