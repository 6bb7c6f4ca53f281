package discounts

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
)

// Repository reads discount codes and redeems them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	Redeem(ctx context.Context, code *models.DiscountCode, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a discount repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var discount models.DiscountCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&discount).Error; err != nil {
		return nil, err
	}
	return &discount, nil
}

// Redeem bumps used_count in one conditional statement. It reports false when the
// code was exhausted, disabled or outside its window by the time the update ran.
func (r *repository) Redeem(ctx context.Context, code *models.DiscountCode, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DiscountCode{}).
		Where("id = ? AND is_active = ?", code.ID, true).
		Where("usage_limit IS NULL OR used_count < usage_limit").
		Where("starts_at IS NULL OR starts_at <= ?", now).
		Where("expires_at IS NULL OR expires_at > ?", now).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
