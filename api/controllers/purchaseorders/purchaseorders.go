package purchaseorders

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	internalpo "github.com/angelmondragon/shopcore-backend/internal/purchaseorders"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type Service interface {
	Create(ctx context.Context, input internalpo.CreateInput, actor *uuid.UUID) (*models.PurchaseOrder, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	List(ctx context.Context, status *enums.PurchaseOrderStatus, params pagination.Params) (pagination.Page[models.PurchaseOrder], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PurchaseOrderStatus, actor *uuid.UUID) (*models.PurchaseOrder, error)
	ReceiveItem(ctx context.Context, id, itemID uuid.UUID, quantity int, actor *uuid.UUID) (*models.PurchaseOrder, error)
	ReceiveAll(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*models.PurchaseOrder, error)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type receiveRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type PurchaseOrderResponse struct {
	ID           uuid.UUID                 `json:"id"`
	PONumber     string                    `json:"po_number"`
	SupplierName string                    `json:"supplier_name"`
	Status       enums.PurchaseOrderStatus `json:"status"`
	TotalAmount  int64                     `json:"total_amount"`
	Notes        *string                   `json:"notes,omitempty"`
	ExpectedDate *time.Time                `json:"expected_date,omitempty"`
	ReceivedDate *time.Time                `json:"received_date,omitempty"`
	CreatedBy    *uuid.UUID                `json:"created_by,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	Items        []ItemResponse            `json:"items,omitempty"`
}

type ItemResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProductID        uuid.UUID  `json:"product_id"`
	VariantID        *uuid.UUID `json:"variant_id,omitempty"`
	QuantityOrdered  int        `json:"quantity_ordered"`
	QuantityReceived int        `json:"quantity_received"`
	Remaining        int        `json:"remaining"`
	UnitCost         int64      `json:"unit_cost"`
	TotalCost        int64      `json:"total_cost"`
}

func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input internalpo.CreateInput
		if err := validators.DecodeJSONBody(w, r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.SupplierName = validators.Sanitize(input.SupplierName, 255)
		po, err := svc.Create(r.Context(), input, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newResponse(po))
	}
}

func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *enums.PurchaseOrderStatus
		if raw := validators.ParseQueryString(r, "status"); raw != nil {
			parsed, err := enums.ParsePurchaseOrderStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]PurchaseOrderResponse, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, newResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, pagination.Page[PurchaseOrderResponse]{Items: items, NextCursor: page.NextCursor})
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		po, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResponse(po))
	}
}

// UpdateStatus moves a purchase order along draft, pending and approved, or cancels it.
func UpdateStatus(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePurchaseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		po, err := svc.UpdateStatus(r.Context(), id, status, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResponse(po))
	}
}

func ReceiveItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.URLParamUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req receiveRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		po, err := svc.ReceiveItem(r.Context(), id, itemID, req.Quantity, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResponse(po))
	}
}

// ReceiveAll books every outstanding unit on the purchase order.
func ReceiveAll(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.URLParamUUID(r, "poId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		po, err := svc.ReceiveAll(r.Context(), id, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResponse(po))
	}
}

func newResponse(po *models.PurchaseOrder) PurchaseOrderResponse {
	resp := PurchaseOrderResponse{
		ID:           po.ID,
		PONumber:     po.PONumber,
		SupplierName: po.SupplierName,
		Status:       po.Status,
		TotalAmount:  po.TotalAmount,
		Notes:        po.Notes,
		ExpectedDate: po.ExpectedDate,
		ReceivedDate: po.ReceivedDate,
		CreatedBy:    po.CreatedBy,
		CreatedAt:    po.CreatedAt,
	}
	for _, item := range po.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:               item.ID,
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			QuantityOrdered:  item.QuantityOrdered,
			QuantityReceived: item.QuantityReceived,
			Remaining:        item.Remaining(),
			UnitCost:         item.UnitCost,
			TotalCost:        item.TotalCost,
		})
	}
	return resp
}

func actorFrom(r *http.Request) *uuid.UUID {
	id := middleware.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		return nil
	}
	return &id
}
