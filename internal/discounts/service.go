package discounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of a redemption attempt. Amount is zero unless Valid.
type Result struct {
	Valid         bool               `json:"valid"`
	Code          string             `json:"code"`
	DiscountType  enums.DiscountType `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	Amount        int64              `json:"amount"`
	Reason        string             `json:"reason,omitempty"`
}

// Service validates a code against a subtotal and consumes one use of it.
type Service interface {
	ValidateAndUseCode(ctx context.Context, tx *gorm.DB, code string, subtotal int64) (*Result, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the discount redeemer.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("discount repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) ValidateAndUseCode(ctx context.Context, tx *gorm.DB, code string, subtotal int64) (*Result, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return invalid(normalized, "code is empty"), nil
	}
	repo := s.repo.WithTx(tx)
	discount, err := repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid(normalized, "code not found"), nil
		}
		return nil, err
	}

	now := s.now().UTC()
	if reason := checkEligibility(discount, subtotal, now); reason != "" {
		return invalid(normalized, reason), nil
	}
	amount := ComputeAmount(discount, subtotal)
	if amount <= 0 {
		return invalid(normalized, "discount does not apply"), nil
	}

	redeemed, err := repo.Redeem(ctx, discount, now)
	if err != nil {
		return nil, err
	}
	if !redeemed {
		return invalid(normalized, "code is no longer available"), nil
	}
	return &Result{
		Valid:         true,
		Code:          normalized,
		DiscountType:  discount.DiscountType,
		DiscountValue: discount.DiscountValue,
		Amount:        amount,
	}, nil
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func checkEligibility(discount *models.DiscountCode, subtotal int64, now time.Time) string {
	switch {
	case !discount.IsActive:
		return "code is inactive"
	case discount.StartsAt != nil && now.Before(*discount.StartsAt):
		return "code is not active yet"
	case discount.ExpiresAt != nil && !now.Before(*discount.ExpiresAt):
		return "code has expired"
	case discount.UsageLimit != nil && discount.UsedCount >= *discount.UsageLimit:
		return "code usage limit reached"
	case subtotal < discount.MinOrderAmount:
		return "order does not meet the minimum amount"
	}
	return ""
}

// ComputeAmount returns the discount in minor units, rounded half-up and capped at the subtotal.
func ComputeAmount(discount *models.DiscountCode, subtotal int64) int64 {
	if subtotal <= 0 || discount.DiscountValue.Sign() <= 0 {
		return 0
	}
	var amount int64
	switch discount.DiscountType {
	case enums.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotal).Mul(discount.DiscountValue).Div(hundred).Round(0).IntPart()
		if discount.MaxDiscount != nil && amount > *discount.MaxDiscount {
			amount = *discount.MaxDiscount
		}
	case enums.DiscountTypeFixed:
		amount = discount.DiscountValue.Round(0).IntPart()
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount
}

func invalid(code, reason string) *Result {
	return &Result{Code: code, Reason: reason}
}
