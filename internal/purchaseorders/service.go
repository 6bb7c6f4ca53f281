package purchaseorders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/inventory"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledger interface {
	AppendTransactionsTx(ctx context.Context, tx *gorm.DB, inputs []inventory.AppendInput) ([]*models.InventoryTransaction, error)
}

// CreateInput describes a new draft purchase order.
type CreateInput struct {
	SupplierName string      `json:"supplier_name" validate:"required,max=255"`
	Notes        *string     `json:"notes,omitempty" validate:"omitempty,max=1000"`
	ExpectedDate *time.Time  `json:"expected_date,omitempty"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemInput is one ordered product or variant.
type ItemInput struct {
	ProductID       uuid.UUID  `json:"product_id" validate:"required"`
	VariantID       *uuid.UUID `json:"variant_id,omitempty"`
	QuantityOrdered int        `json:"quantity_ordered" validate:"required,gt=0"`
	UnitCost        int64      `json:"unit_cost" validate:"gte=0"`
}

// Service manages supplier restocks. Receiving is the only path that adds
// purchase entries to the inventory ledger.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor *uuid.UUID) (*models.PurchaseOrder, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	List(ctx context.Context, status *enums.PurchaseOrderStatus, params pagination.Params) (pagination.Page[models.PurchaseOrder], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PurchaseOrderStatus, actor *uuid.UUID) (*models.PurchaseOrder, error)
	ReceiveItem(ctx context.Context, id, itemID uuid.UUID, quantity int, actor *uuid.UUID) (*models.PurchaseOrder, error)
	ReceiveAll(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.PurchaseOrder, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	ledger ledger
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(tx txRunner, repo Repository, ledger ledger, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("purchase order repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{tx: tx, repo: repo, ledger: ledger, logg: logg, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	supplier := strings.TrimSpace(input.SupplierName)
	if supplier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier name required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order needs at least one item")
	}

	po := &models.PurchaseOrder{
		ID:           uuid.New(),
		PONumber:     GeneratePONumber(s.now()),
		SupplierName: supplier,
		Status:       enums.PurchaseOrderStatusDraft,
		Notes:        input.Notes,
		ExpectedDate: input.ExpectedDate,
		CreatedBy:    actor,
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil || item.QuantityOrdered <= 0 || item.UnitCost < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase order item").
				WithDetails(map[string]any{"index": i})
		}
		total := item.UnitCost * int64(item.QuantityOrdered)
		po.Items = append(po.Items, models.PurchaseOrderItem{
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			QuantityOrdered: item.QuantityOrdered,
			UnitCost:        item.UnitCost,
			TotalCost:       total,
		})
		po.TotalAmount += total
	}

	if err := s.repo.Create(ctx, po); err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"po_number": po.PONumber, "items": len(po.Items)})
	s.logg.Info(logCtx, "purchase order created")
	return po, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	po, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return po, nil
}

func (s *service) List(ctx context.Context, status *enums.PurchaseOrderStatus, params pagination.Params) (pagination.Page[models.PurchaseOrder], error) {
	if status != nil && !status.IsValid() {
		return pagination.Page[models.PurchaseOrder]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase order status")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.PurchaseOrder]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, status, params)
	if err != nil {
		return pagination.Page[models.PurchaseOrder]{}, err
	}
	return pagination.Build(rows, params, func(po models.PurchaseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: po.CreatedAt, ID: po.ID}
	}), nil
}

// UpdateStatus moves a purchase order one step along draft, pending, approved.
// Moving an approved order to received receives every outstanding unit.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PurchaseOrderStatus, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase order status")
	}
	if status == enums.PurchaseOrderStatusReceived {
		return s.ReceiveAll(ctx, id, actor)
	}

	var po *models.PurchaseOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		po, err = repo.LockByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if po.Status == status {
			return nil
		}
		if !po.Status.CanTransitionTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move purchase order from %s to %s", po.Status, status))
		}
		po.Status = status
		return repo.Update(ctx, po.ID, map[string]any{"status": status})
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// ReceiveItem books up to quantity units of one line. Quantities beyond what is
// still outstanding are clamped.
func (s *service) ReceiveItem(ctx context.Context, id, itemID uuid.UUID, quantity int, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.receive(ctx, id, actor, func(item models.PurchaseOrderItem) (int, bool) {
		if item.ID != itemID {
			return 0, false
		}
		return min(quantity, item.Remaining()), true
	})
}

// ReceiveAll books every outstanding unit of every line.
func (s *service) ReceiveAll(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	return s.receive(ctx, id, actor, func(item models.PurchaseOrderItem) (int, bool) {
		return item.Remaining(), true
	})
}

// receive runs under the purchase order lock. pick returns the units to book for
// an item and whether the item was selected at all. Stock rows are locked as one
// batch in the same order Reserve uses.
func (s *service) receive(ctx context.Context, id uuid.UUID, actor *uuid.UUID, pick func(models.PurchaseOrderItem) (int, bool)) (*models.PurchaseOrder, error) {
	var po *models.PurchaseOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		po, err = repo.LockByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if po.Status != enums.PurchaseOrderStatusApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase order is not approved")
		}

		selected := false
		refType := enums.ReferenceTypePurchaseOrder
		note := fmt.Sprintf("Received from %s", po.PONumber)
		var (
			inputs   []inventory.AppendInput
			received []int
		)
		for i := range po.Items {
			item := &po.Items[i]
			qty, ok := pick(*item)
			if !ok {
				continue
			}
			selected = true
			if qty <= 0 {
				continue
			}
			unitCost := item.UnitCost
			inputs = append(inputs, inventory.AppendInput{
				ProductID:     item.ProductID,
				VariantID:     item.VariantID,
				Type:          enums.InventoryTransactionPurchase,
				Quantity:      qty,
				UnitCost:      &unitCost,
				ReferenceType: &refType,
				ReferenceID:   &po.ID,
				Notes:         &note,
				CreatedBy:     actor,
			})
			received = append(received, i)
		}
		if !selected {
			return pkgerrors.New(pkgerrors.CodeNotFound, "purchase order item not found")
		}
		if len(inputs) > 0 {
			if _, err := s.ledger.AppendTransactionsTx(ctx, tx, inputs); err != nil {
				return err
			}
		}
		for n, i := range received {
			item := &po.Items[i]
			item.QuantityReceived += inputs[n].Quantity
			if err := repo.UpdateItemReceived(ctx, item.ID, item.QuantityReceived); err != nil {
				return err
			}
		}

		if fullyReceived(po.Items) {
			now := s.now().UTC()
			po.Status = enums.PurchaseOrderStatusReceived
			po.ReceivedDate = &now
			return repo.Update(ctx, po.ID, map[string]any{
				"status":        po.Status,
				"received_date": now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"po_number": po.PONumber, "status": string(po.Status)})
	s.logg.Info(logCtx, "purchase order received")
	return po, nil
}

// GeneratePONumber builds a PO reference from the timestamp plus a random suffix.
func GeneratePONumber(now time.Time) string {
	return fmt.Sprintf("PO%d%03d", now.UnixMilli(), rand.IntN(1000))
}

func fullyReceived(items []models.PurchaseOrderItem) bool {
	for _, item := range items {
		if item.Remaining() > 0 {
			return false
		}
	}
	return true
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "purchase order not found")
	}
	return err
}
