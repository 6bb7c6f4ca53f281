package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Repository manages stock rows and the append-only transaction ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	LockVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	UpdateProductStock(ctx context.Context, id uuid.UUID, quantity int, status enums.ProductStatus) error
	UpdateVariantStock(ctx context.Context, id uuid.UUID, quantity int) error
	CreateTransaction(ctx context.Context, entry *models.InventoryTransaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter, params pagination.Params) ([]models.InventoryTransaction, error)
	ListStockHistory(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]models.InventoryTransaction, error)
}

// TransactionFilter narrows ledger listings. Zero values are ignored.
type TransactionFilter struct {
	ProductID     *uuid.UUID
	VariantID     *uuid.UUID
	Type          *enums.InventoryTransactionType
	ReferenceType *enums.ReferenceType
	ReferenceID   *uuid.UUID
	From          *time.Time
	To            *time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) LockVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) UpdateProductStock(ctx context.Context, id uuid.UUID, quantity int, status enums.ProductStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"inventory_quantity": quantity,
			"status":             status,
		}).Error
}

func (r *repository) UpdateVariantStock(ctx context.Context, id uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", id).
		Update("inventory_quantity", quantity).Error
}

func (r *repository) CreateTransaction(ctx context.Context, entry *models.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, filter TransactionFilter, params pagination.Params) ([]models.InventoryTransaction, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryTransaction{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.VariantID != nil {
		query = query.Where("variant_id = ?", *filter.VariantID)
	}
	if filter.Type != nil {
		query = query.Where("transaction_type = ?", *filter.Type)
	}
	if filter.ReferenceType != nil {
		query = query.Where("reference_type = ?", *filter.ReferenceType)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	query, err := pagination.Apply(query, params)
	if err != nil {
		return nil, err
	}
	var entries []models.InventoryTransaction
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListStockHistory(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) ([]models.InventoryTransaction, error) {
	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	} else {
		query = query.Where("variant_id IS NULL")
	}
	var entries []models.InventoryTransaction
	if err := query.Order("seq ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
