package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/checkout/helpers"
	"github.com/angelmondragon/shopcore-backend/internal/discounts"
	"github.com/angelmondragon/shopcore-backend/internal/inventory"
	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

const discountSavepoint = "apply_discount"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []inventory.StockLine, ref inventory.Reference) error
}

type newOrderNotifier interface {
	SendNewOrder(ctx context.Context, order *models.Order)
}

// Service turns a user's cart into a committed order.
type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error)
}

// Input carries the customer and shipping snapshot plus an optional discount code.
type Input struct {
	CustomerName       string  `json:"customer_name" validate:"required,max=255"`
	CustomerEmail      string  `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone      string  `json:"customer_phone" validate:"required,max=32"`
	ShippingAddress    string  `json:"shipping_address" validate:"required,max=500"`
	ShippingCity       string  `json:"shipping_city" validate:"required,max=100"`
	ShippingPostalCode *string `json:"shipping_postal_code,omitempty" validate:"omitempty,max=20"`
	DiscountCode       *string `json:"discount_code,omitempty" validate:"omitempty,max=64"`
	Notes              *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// ServiceParams wires the checkout service. Notifier, Metrics and Logger are optional.
type ServiceParams struct {
	Tx        txRunner
	Cart      cart.Service
	Inventory stockReserver
	Discounts discounts.Service
	Orders    orders.Repository
	Notifier  newOrderNotifier
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
	Config    config.CheckoutConfig
}

type service struct {
	tx        txRunner
	cart      cart.Service
	inventory stockReserver
	discounts discounts.Service
	orders    orders.Repository
	notifier  newOrderNotifier
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	cfg       config.CheckoutConfig
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Discounts == nil {
		return nil, fmt.Errorf("discount service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        params.Tx,
		cart:      params.Cart,
		inventory: params.Inventory,
		discounts: params.Discounts,
		orders:    params.Orders,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logg:      logg,
		cfg:       params.Config,
		now:       time.Now,
	}, nil
}

// CreateOrder reserves stock for every cart line and persists the order in one
// transaction. Any failure leaves stock, orders, ledger and cart untouched.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error) {
	if err := validateInput(userID, input); err != nil {
		s.metrics.IncCheckout(metrics.CheckoutRejected)
		return nil, err
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		snapshot, err := s.cart.GetCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if snapshot.IsEmpty() {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		now := s.now().UTC()
		order = newOrder(userID, input, now)

		lines := make([]inventory.StockLine, 0, len(snapshot.Items))
		for _, item := range snapshot.Items {
			lines = append(lines, inventory.StockLine{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}
		ref := inventory.Reference{
			Type:  enums.ReferenceTypeOrder,
			ID:    order.ID,
			Actor: &userID,
			Note:  order.OrderNumber,
		}
		if err := s.inventory.Reserve(ctx, tx, lines, ref); err != nil {
			return err
		}

		shipping := helpers.ShippingFee(snapshot.Total, s.cfg)
		discount := s.applyDiscount(ctx, tx, input.DiscountCode, snapshot.Total)
		totals := helpers.ComputeTotals(snapshot.Total, shipping, discount.Amount)
		order.Subtotal = totals.Subtotal
		order.ShippingFee = totals.ShippingFee
		order.DiscountAmount = totals.DiscountAmount
		order.TotalAmount = totals.Total
		if discount.Valid {
			code := discount.Code
			order.DiscountCode = &code
		}
		order.Items = orderItems(snapshot.Items)

		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.cart.Clear(ctx, tx, userID)
	})
	if err != nil {
		s.recordFailure(ctx, userID, err)
		return nil, err
	}

	s.metrics.IncCheckout(metrics.CheckoutCreated)
	logCtx := s.logg.WithOrder(ctx, order.ID.String(), order.OrderNumber)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"user_id":      userID.String(),
		"total_amount": order.TotalAmount,
		"items":        len(order.Items),
	})
	s.logg.Info(logCtx, "order created")

	if s.notifier != nil {
		s.notifier.SendNewOrder(ctx, order)
	}
	return order, nil
}

// applyDiscount redeems the code inside a savepoint. Any failure, including a
// database error, rolls back just the savepoint and yields no discount.
func (s *service) applyDiscount(ctx context.Context, tx *gorm.DB, code *string, subtotal int64) discounts.Result {
	if code == nil || discounts.NormalizeCode(*code) == "" {
		return discounts.Result{}
	}
	if err := tx.SavePoint(discountSavepoint).Error; err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "discount savepoint failed, skipping discount")
		return discounts.Result{}
	}

	result, err := s.discounts.ValidateAndUseCode(ctx, tx, *code, subtotal)
	if err == nil && result != nil && result.Valid {
		return *result
	}

	if rbErr := tx.RollbackTo(discountSavepoint).Error; rbErr != nil {
		s.logg.Error(ctx, "rollback discount savepoint", rbErr)
	}
	fields := map[string]any{"discount_code": discounts.NormalizeCode(*code)}
	switch {
	case err != nil:
		fields["error"] = err.Error()
	case result != nil:
		fields["reason"] = result.Reason
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "discount not applied")
	return discounts.Result{}
}

func (s *service) recordFailure(ctx context.Context, userID uuid.UUID, err error) {
	outcome := metrics.CheckoutError
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
		outcome = metrics.CheckoutInsufficientStock
	case pkgerrors.HasCode(err, pkgerrors.CodeConcurrency):
		outcome = metrics.CheckoutConcurrency
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation), pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		outcome = metrics.CheckoutRejected
	}
	s.metrics.IncCheckout(outcome)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id": userID.String(),
		"outcome": outcome,
	})
	if outcome == metrics.CheckoutError {
		s.logg.Error(logCtx, "checkout failed", err)
		return
	}
	s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "checkout rejected")
}

func validateInput(userID uuid.UUID, input Input) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	required := []struct{ field, value string }{
		{"customer_name", input.CustomerName},
		{"customer_email", input.CustomerEmail},
		{"customer_phone", input.CustomerPhone},
		{"shipping_address", input.ShippingAddress},
		{"shipping_city", input.ShippingCity},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.field)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing checkout details").WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func newOrder(userID uuid.UUID, input Input, now time.Time) *models.Order {
	return &models.Order{
		ID:                 uuid.New(),
		OrderNumber:        helpers.GenerateOrderNumber(now),
		UserID:             userID,
		CustomerName:       strings.TrimSpace(input.CustomerName),
		CustomerEmail:      strings.TrimSpace(input.CustomerEmail),
		CustomerPhone:      strings.TrimSpace(input.CustomerPhone),
		ShippingAddress:    strings.TrimSpace(input.ShippingAddress),
		ShippingCity:       strings.TrimSpace(input.ShippingCity),
		ShippingPostalCode: trimmedOrNil(input.ShippingPostalCode),
		Notes:              trimmedOrNil(input.Notes),
		Status:             enums.OrderStatusPending,
		PaymentStatus:      enums.PaymentStatusPending,
		OrderDate:          now,
	}
}

func orderItems(items []cart.Item) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.OrderItem{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			ImageURL:    item.ImageURL,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.LineTotal,
		})
	}
	return out
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
