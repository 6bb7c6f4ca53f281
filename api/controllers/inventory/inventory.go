package inventory

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	internalinventory "github.com/angelmondragon/shopcore-backend/internal/inventory"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Service is the ledger surface exposed to operators.
type Service interface {
	AppendTransaction(ctx context.Context, input internalinventory.AppendInput) (*models.InventoryTransaction, error)
	AdjustInventory(ctx context.Context, input internalinventory.AdjustInput) (*models.InventoryTransaction, error)
	ListTransactions(ctx context.Context, filter internalinventory.TransactionFilter, params pagination.Params) (pagination.Page[models.InventoryTransaction], error)
	History(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*internalinventory.StockHistory, error)
}

type appendRequest struct {
	ProductID       uuid.UUID  `json:"product_id" validate:"required"`
	VariantID       *uuid.UUID `json:"variant_id,omitempty"`
	TransactionType string     `json:"transaction_type" validate:"required"`
	Quantity        int        `json:"quantity" validate:"ne=0"`
	UnitCost        *int64     `json:"unit_cost,omitempty" validate:"omitempty,gte=0"`
	ReferenceType   *string    `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID `json:"reference_id,omitempty"`
	Notes           *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type adjustRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Delta     int        `json:"delta" validate:"ne=0"`
	Reason    string     `json:"reason" validate:"required,max=500"`
}

type TransactionResponse struct {
	ID              uuid.UUID                      `json:"id"`
	ProductID       uuid.UUID                      `json:"product_id"`
	VariantID       *uuid.UUID                     `json:"variant_id,omitempty"`
	TransactionType enums.InventoryTransactionType `json:"transaction_type"`
	Quantity        int                            `json:"quantity"`
	UnitCost        *int64                         `json:"unit_cost,omitempty"`
	TotalCost       *int64                         `json:"total_cost,omitempty"`
	ReferenceType   *enums.ReferenceType           `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID                     `json:"reference_id,omitempty"`
	BalanceAfter    int                            `json:"balance_after"`
	Notes           *string                        `json:"notes,omitempty"`
	CreatedBy       *uuid.UUID                     `json:"created_by,omitempty"`
	CreatedAt       string                         `json:"created_at"`
}

type historyEntryResponse struct {
	TransactionResponse
	RunningBalance int  `json:"running_balance"`
	Consistent     bool `json:"consistent"`
}

type historyResponse struct {
	ProductID    uuid.UUID              `json:"product_id"`
	VariantID    *uuid.UUID             `json:"variant_id,omitempty"`
	CurrentStock int                    `json:"current_stock"`
	Consistent   bool                   `json:"consistent"`
	Entries      []historyEntryResponse `json:"entries"`
}

// AppendTransaction records a manual ledger entry such as a return or damage write-off.
func AppendTransaction(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appendRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txType, err := enums.ParseInventoryTransactionType(req.TransactionType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction_type"))
			return
		}
		input := internalinventory.AppendInput{
			ProductID:   req.ProductID,
			VariantID:   req.VariantID,
			Type:        txType,
			Quantity:    req.Quantity,
			UnitCost:    req.UnitCost,
			ReferenceID: req.ReferenceID,
			Notes:       sanitizeNotes(req.Notes),
			CreatedBy:   actorFrom(r),
		}
		if req.ReferenceType != nil {
			refType, err := enums.ParseReferenceType(*req.ReferenceType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference_type"))
				return
			}
			input.ReferenceType = &refType
		}

		entry, err := svc.AppendTransaction(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionResponse(*entry))
	}
}

// Adjust applies a signed operator correction to one stock row.
func Adjust(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adjustRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.AdjustInventory(r.Context(), internalinventory.AdjustInput{
			ProductID: req.ProductID,
			VariantID: req.VariantID,
			Delta:     req.Delta,
			Reason:    validators.Sanitize(req.Reason, 500),
			Actor:     actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionResponse(*entry))
	}
}

func ListTransactions(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseTransactionFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListTransactions(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]TransactionResponse, 0, len(page.Items))
		for _, entry := range page.Items {
			items = append(items, newTransactionResponse(entry))
		}
		responses.WriteSuccess(w, pagination.Page[TransactionResponse]{Items: items, NextCursor: page.NextCursor})
	}
}

// History replays the ledger for one product or variant and flags balance drift.
func History(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if productID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required"))
			return
		}
		variantID, err := validators.ParseQueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), *productID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := historyResponse{
			ProductID:    history.ProductID,
			VariantID:    history.VariantID,
			CurrentStock: history.CurrentStock,
			Consistent:   history.Consistent,
			Entries:      make([]historyEntryResponse, 0, len(history.Entries)),
		}
		for _, entry := range history.Entries {
			resp.Entries = append(resp.Entries, historyEntryResponse{
				TransactionResponse: newTransactionResponse(entry.InventoryTransaction),
				RunningBalance:      entry.RunningBalance,
				Consistent:          entry.Consistent,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

func parseTransactionFilter(r *http.Request) (internalinventory.TransactionFilter, error) {
	var (
		filter internalinventory.TransactionFilter
		err    error
	)
	if filter.ProductID, err = validators.ParseQueryUUID(r, "product_id"); err != nil {
		return filter, err
	}
	if filter.VariantID, err = validators.ParseQueryUUID(r, "variant_id"); err != nil {
		return filter, err
	}
	if filter.ReferenceID, err = validators.ParseQueryUUID(r, "reference_id"); err != nil {
		return filter, err
	}
	if raw := validators.ParseQueryString(r, "transaction_type"); raw != nil {
		txType, err := enums.ParseInventoryTransactionType(*raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction_type filter")
		}
		filter.Type = &txType
	}
	if raw := validators.ParseQueryString(r, "reference_type"); raw != nil {
		refType, err := enums.ParseReferenceType(*raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference_type filter")
		}
		filter.ReferenceType = &refType
	}
	if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func newTransactionResponse(entry models.InventoryTransaction) TransactionResponse {
	return TransactionResponse{
		ID:              entry.ID,
		ProductID:       entry.ProductID,
		VariantID:       entry.VariantID,
		TransactionType: entry.TransactionType,
		Quantity:        entry.Quantity,
		UnitCost:        entry.UnitCost,
		TotalCost:       entry.TotalCost,
		ReferenceType:   entry.ReferenceType,
		ReferenceID:     entry.ReferenceID,
		BalanceAfter:    entry.BalanceAfter,
		Notes:           entry.Notes,
		CreatedBy:       entry.CreatedBy,
		CreatedAt:       entry.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func actorFrom(r *http.Request) *uuid.UUID {
	id := middleware.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func sanitizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	clean := validators.Sanitize(*notes, 1000)
	if clean == "" {
		return nil
	}
	return &clean
}
