package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Product is the catalog row whose inventory_quantity the stock protocol mutates.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SKU               string              `gorm:"column:sku;not null;uniqueIndex"`
	Name              string              `gorm:"column:name;not null"`
	ImageURL          *string             `gorm:"column:image_url"`
	Price             int64               `gorm:"column:price;not null"`
	InventoryQuantity int                 `gorm:"column:inventory_quantity;not null;default:0"`
	TrackInventory    bool                `gorm:"column:track_inventory;not null"`
	Status            enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:'active'"`
	Variants          []ProductVariant    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ProductVariant carries its own stock counter. Whether it is tracked follows the parent product.
type ProductVariant struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	SKU               string    `gorm:"column:sku;not null;uniqueIndex"`
	Name              string    `gorm:"column:name;not null"`
	Price             int64     `gorm:"column:price;not null"`
	InventoryQuantity int       `gorm:"column:inventory_quantity;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
