package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/inventory"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Service owns the order and payment state machines.
type Service interface {
	GetByID(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, note string) (*models.Order, bool, error)
	Cancel(ctx context.Context, id uuid.UUID, requesterID *uuid.UUID, reason string) (*models.Order, error)
	UpdateShipping(ctx context.Context, id uuid.UUID, input ShippingInput) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error)
	UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error)
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	Expire(ctx context.Context, id uuid.UUID, cutoff time.Time, note string) (bool, error)
}

// ServiceParams wires the orders service. Notifier and Metrics are optional.
type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Inventory stockRestorer
	Notifier  confirmationNotifier
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

type service struct {
	tx        txRunner
	repo      Repository
	inventory stockRestorer
	notifier  confirmationNotifier
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		inventory: params.Inventory,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// GetByID loads an order. When ownerID is set, orders of other users read as missing.
func (s *service) GetByID(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if ownerID != nil && order.UserID != *ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, notFound(err)
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.Build(rows, params, orderCursor), nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.Build(rows, params, orderCursor), nil
}

// UpdateStatus moves the order along its fulfillment chain. Re-entering the current
// status reports no change; an illegal move is a state conflict.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, note string) (*models.Order, bool, error) {
	if !status.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	var (
		order    *models.Order
		changed  bool
		restored bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.LockByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if order.Status == status {
			return nil
		}
		if !order.Status.CanTransitionTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot change order status from %s to %s", order.Status, status))
		}

		now := s.now().UTC()
		updates := map[string]any{}
		if status == enums.OrderStatusCancelled {
			if restored, err = s.restoreStock(ctx, tx, order, updates, now, "order cancelled"); err != nil {
				return err
			}
		}
		s.setStatus(order, status, updates, now)
		if strings.TrimSpace(note) != "" {
			s.addNote(order, updates, now, note)
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if restored {
		s.recordRestore(ctx, order, "order cancelled")
	}
	return order, changed, nil
}

// Cancel cancels a pending or confirmed order and returns its stock. A non-nil
// requesterID restricts the call to the order's owner.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, requesterID *uuid.UUID, reason string) (*models.Order, error) {
	var (
		order    *models.Order
		restored bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.LockByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if requesterID != nil && order.UserID != *requesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if !order.Status.IsCancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order in status %s can no longer be cancelled", order.Status))
		}

		now := s.now().UTC()
		updates := map[string]any{}
		if restored, err = s.restoreStock(ctx, tx, order, updates, now, "order cancelled"); err != nil {
			return err
		}
		s.setStatus(order, enums.OrderStatusCancelled, updates, now)
		note := "Cancelled"
		if reason = strings.TrimSpace(reason); reason != "" {
			note = "Cancelled: " + reason
		}
		s.addNote(order, updates, now, note)
		return repo.Update(ctx, order.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	if restored {
		s.recordRestore(ctx, order, "order cancelled")
	}
	return order, nil
}

func (s *service) UpdateShipping(ctx context.Context, id uuid.UUID, input ShippingInput) (*models.Order, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	carrier := strings.TrimSpace(input.Carrier)
	if tracking == "" || carrier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number and carrier are required")
	}
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.LockByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cancelled")
		}
		order.TrackingNumber = &tracking
		order.ShippingCarrier = &carrier
		return repo.Update(ctx, order.ID, map[string]any{
			"tracking_number":  tracking,
			"shipping_carrier": carrier,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdatePaymentStatus applies a payment transition in its own transaction and sends the
// confirmation notification after commit.
func (s *service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error) {
	var (
		order    *models.Order
		changed  bool
		restored bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, changed, restored, err = s.applyPaymentStatus(ctx, tx, id, status)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if restored {
		s.recordRestore(ctx, order, "payment "+string(status))
	}
	if changed && status == enums.PaymentStatusPaid && s.notifier != nil {
		s.notifier.SendOrderConfirmed(ctx, order)
	}
	return order, changed, nil
}

// UpdatePaymentStatusTx applies a payment transition inside tx. Pairs other than
// PENDING→PAID, PAID→FAILED and PAID→REFUNDED leave the order untouched and report no change.
// The caller owns the commit, so a restore made here is not counted in the metrics.
func (s *service) UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error) {
	order, changed, _, err := s.applyPaymentStatus(ctx, tx, id, status)
	return order, changed, err
}

func (s *service) applyPaymentStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, bool, error) {
	if tx == nil {
		return nil, false, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if !status.IsValid() {
		return nil, false, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, id)
	if err != nil {
		return nil, false, false, notFound(err)
	}
	if !order.PaymentStatus.CanTransitionTo(status) {
		return order, false, false, nil
	}

	now := s.now().UTC()
	updates := map[string]any{}
	restored := false
	switch {
	case status == enums.PaymentStatusPaid:
		if order.Status == enums.OrderStatusCancelled {
			return nil, false, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order cancelled")
		}
		if order.Status == enums.OrderStatusPending {
			s.setStatus(order, enums.OrderStatusConfirmed, updates, now)
		}
	case order.PaymentStatus.IsReversal(status):
		// Goods already handed to the carrier stay out of stock; only the payment flips.
		if order.Status != enums.OrderStatusShipped && order.Status != enums.OrderStatusDelivered {
			if restored, err = s.restoreStock(ctx, tx, order, updates, now, "payment "+string(status)); err != nil {
				return nil, false, false, err
			}
			if order.Status != enums.OrderStatusCancelled {
				s.setStatus(order, enums.OrderStatusCancelled, updates, now)
			}
			s.addNote(order, updates, now, fmt.Sprintf("Cancelled after payment %s", status))
		}
	}
	order.PaymentStatus = status
	updates["payment_status"] = status
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, false, false, err
	}
	return order, true, restored, nil
}

func (s *service) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return s.repo.FindExpiredIDs(ctx, cutoff, limit)
}

// Expire cancels one unpaid order placed before cutoff and returns its stock. The
// conditions are re-checked under the row lock, so a concurrent payment or a second
// sweep simply sees nothing to do.
func (s *service) Expire(ctx context.Context, id uuid.UUID, cutoff time.Time, note string) (bool, error) {
	var (
		order    *models.Order
		expired  bool
		restored bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.LockByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if order.Status != enums.OrderStatusPending ||
			order.PaymentStatus != enums.PaymentStatusPending ||
			!order.OrderDate.Before(cutoff) {
			return nil
		}
		now := s.now().UTC()
		updates := map[string]any{}
		if restored, err = s.restoreStock(ctx, tx, order, updates, now, "order expired"); err != nil {
			return err
		}
		s.setStatus(order, enums.OrderStatusCancelled, updates, now)
		s.addNote(order, updates, now, note)
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if restored {
		s.recordRestore(ctx, order, "order expired")
	}
	return expired, nil
}

// restoreStock returns the order's reserved stock at most once per order. It
// reports whether stock was returned by this call.
func (s *service) restoreStock(ctx context.Context, tx *gorm.DB, order *models.Order, updates map[string]any, now time.Time, note string) (bool, error) {
	if order.InventoryRestoredAt != nil {
		return false, nil
	}
	lines := make([]inventory.StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, inventory.StockLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	if len(lines) > 0 {
		ref := inventory.Reference{
			Type: enums.ReferenceTypeOrder,
			ID:   order.ID,
			Note: fmt.Sprintf("%s: %s", order.OrderNumber, note),
		}
		if err := s.inventory.Restore(ctx, tx, lines, ref); err != nil {
			return false, err
		}
	}
	order.InventoryRestoredAt = &now
	updates["inventory_restored_at"] = now
	return true, nil
}

// recordRestore runs after commit.
func (s *service) recordRestore(ctx context.Context, order *models.Order, reason string) {
	s.metrics.IncRestored()
	logCtx := s.logg.WithOrder(ctx, order.ID.String(), order.OrderNumber)
	s.logg.Info(s.logg.WithField(logCtx, "reason", reason), "order stock restored")
}

// setStatus moves the in-memory order and stamps the status timestamp once.
func (s *service) setStatus(order *models.Order, status enums.OrderStatus, updates map[string]any, now time.Time) {
	order.Status = status
	updates["status"] = status

	var stamp **time.Time
	column := ""
	switch status {
	case enums.OrderStatusConfirmed:
		stamp, column = &order.ConfirmedAt, "confirmed_at"
	case enums.OrderStatusShipped:
		stamp, column = &order.ShippedAt, "shipped_at"
	case enums.OrderStatusDelivered:
		stamp, column = &order.DeliveredAt, "delivered_at"
	case enums.OrderStatusCancelled:
		stamp, column = &order.CancelledAt, "cancelled_at"
	}
	if stamp != nil && *stamp == nil {
		at := now
		*stamp = &at
		updates[column] = now
	}
}

func (s *service) addNote(order *models.Order, updates map[string]any, now time.Time, note string) {
	order.Notes = AppendNote(order.Notes, now, note)
	updates["notes"] = *order.Notes
}

// AppendNote adds a timestamped line to existing order notes.
func AppendNote(existing *string, at time.Time, note string) *string {
	line := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), strings.TrimSpace(note))
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &line
	}
	combined := *existing + "\n" + line
	return &combined
}

func orderCursor(o models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	return err
}
