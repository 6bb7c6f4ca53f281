package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Item is a read-only snapshot of one cart line.
type Item struct {
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name"`
	VariantName *string    `json:"variant_name,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	LineTotal   int64      `json:"line_total"`
}

// Cart is the snapshot checkout reads once. It is not locked.
type Cart struct {
	UserID uuid.UUID `json:"user_id"`
	Items  []Item    `json:"items"`
	Total  int64     `json:"total"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Service reads and clears carts. A nil tx runs against the base connection.
type Service interface {
	GetCart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService builds the cart reader.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetCart(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*Cart, error) {
	rows, err := s.repo.WithTx(tx).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart := &Cart{UserID: userID, Items: make([]Item, 0, len(rows))}
	for _, row := range rows {
		line := row.UnitPrice * int64(row.Quantity)
		cart.Items = append(cart.Items, Item{
			ProductID:   row.ProductID,
			VariantID:   row.VariantID,
			ProductName: row.ProductName,
			VariantName: row.VariantName,
			ImageURL:    row.ImageURL,
			Quantity:    row.Quantity,
			UnitPrice:   row.UnitPrice,
			LineTotal:   line,
		})
		cart.Total += line
	}
	return cart, nil
}

func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	return s.repo.WithTx(tx).DeleteByUser(ctx, userID)
}
