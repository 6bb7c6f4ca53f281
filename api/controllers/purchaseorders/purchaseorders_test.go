package purchaseorders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	internalpo "github.com/angelmondragon/shopcore-backend/internal/purchaseorders"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type stubPOs struct {
	po         *models.PurchaseOrder
	err        error
	created    internalpo.CreateInput
	actor      *uuid.UUID
	status     *enums.PurchaseOrderStatus
	itemID     uuid.UUID
	quantity   int
	receiveAll bool
}

func (s *stubPOs) Create(_ context.Context, input internalpo.CreateInput, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	s.created = input
	s.actor = actor
	return s.po, s.err
}

func (s *stubPOs) Get(context.Context, uuid.UUID) (*models.PurchaseOrder, error) {
	return s.po, s.err
}

func (s *stubPOs) List(_ context.Context, status *enums.PurchaseOrderStatus, _ pagination.Params) (pagination.Page[models.PurchaseOrder], error) {
	s.status = status
	return pagination.Page[models.PurchaseOrder]{Items: []models.PurchaseOrder{*s.po}}, s.err
}

func (s *stubPOs) UpdateStatus(_ context.Context, _ uuid.UUID, status enums.PurchaseOrderStatus, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	s.status = &status
	s.actor = actor
	return s.po, s.err
}

func (s *stubPOs) ReceiveItem(_ context.Context, _ uuid.UUID, itemID uuid.UUID, quantity int, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	s.itemID = itemID
	s.quantity = quantity
	s.actor = actor
	return s.po, s.err
}

func (s *stubPOs) ReceiveAll(_ context.Context, _ uuid.UUID, actor *uuid.UUID) (*models.PurchaseOrder, error) {
	s.receiveAll = true
	s.actor = actor
	return s.po, s.err
}

func samplePO() *models.PurchaseOrder {
	return &models.PurchaseOrder{
		ID:           uuid.New(),
		PONumber:     "PO-20260301-0001",
		SupplierName: "Acme Supply",
		Status:       enums.PurchaseOrderStatusApproved,
		TotalAmount:  50000,
		Items: []models.PurchaseOrderItem{
			{ID: uuid.New(), ProductID: uuid.New(), QuantityOrdered: 10, QuantityReceived: 4, UnitCost: 5000, TotalCost: 50000},
		},
	}
}

func do(handler http.HandlerFunc, pattern, method, target, body string, actor uuid.UUID) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithIdentity(req.Context(), actor, enums.UserRoleAdmin))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreate(t *testing.T) {
	svc := &stubPOs{po: samplePO()}
	actor := uuid.New()
	body := `{"supplier_name":" Acme Supply ","items":[{"product_id":"` + uuid.NewString() + `","quantity_ordered":10,"unit_cost":5000}]}`

	rec := do(Create(svc, logger.Nop()), "/purchase-orders", http.MethodPost, "/purchase-orders", body, actor)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Acme Supply", svc.created.SupplierName)
	require.Len(t, svc.created.Items, 1)
	require.NotNil(t, svc.actor)
	assert.Equal(t, actor, *svc.actor)

	var envelope struct {
		Data PurchaseOrderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Items, 1)
	assert.Equal(t, 6, envelope.Data.Items[0].Remaining)
}

func TestCreateRequiresItems(t *testing.T) {
	svc := &stubPOs{po: samplePO()}
	rec := do(Create(svc, logger.Nop()), "/purchase-orders", http.MethodPost, "/purchase-orders", `{"supplier_name":"Acme","items":[]}`, uuid.New())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStatusFilter(t *testing.T) {
	svc := &stubPOs{po: samplePO()}
	rec := do(List(svc, logger.Nop()), "/purchase-orders", http.MethodGet, "/purchase-orders?status=approved", "", uuid.New())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.status)
	assert.Equal(t, enums.PurchaseOrderStatusApproved, *svc.status)

	rec = do(List(svc, logger.Nop()), "/purchase-orders", http.MethodGet, "/purchase-orders?status=lost", "", uuid.New())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiveItem(t *testing.T) {
	svc := &stubPOs{po: samplePO()}
	itemID := uuid.New()
	target := "/purchase-orders/" + svc.po.ID.String() + "/items/" + itemID.String() + "/receive"
	rec := do(ReceiveItem(svc, logger.Nop()), "/purchase-orders/{poId}/items/{itemId}/receive", http.MethodPost, target, `{"quantity":3}`, uuid.New())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itemID, svc.itemID)
	assert.Equal(t, 3, svc.quantity)

	rec = do(ReceiveItem(svc, logger.Nop()), "/purchase-orders/{poId}/items/{itemId}/receive", http.MethodPost, target, `{"quantity":0}`, uuid.New())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiveAllSurfacesStateConflict(t *testing.T) {
	svc := &stubPOs{po: samplePO(), err: pkgerrors.New(pkgerrors.CodeStateConflict, "purchase order is cancelled")}
	target := "/purchase-orders/" + svc.po.ID.String() + "/receive"
	rec := do(ReceiveAll(svc, logger.Nop()), "/purchase-orders/{poId}/receive", http.MethodPost, target, "", uuid.New())

	assert.True(t, svc.receiveAll)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "purchase order is cancelled")
}

func TestUpdateStatus(t *testing.T) {
	svc := &stubPOs{po: samplePO()}
	target := "/purchase-orders/" + svc.po.ID.String() + "/status"
	rec := do(UpdateStatus(svc, logger.Nop()), "/purchase-orders/{poId}/status", http.MethodPatch, target, `{"status":"cancelled"}`, uuid.New())

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.status)
	assert.Equal(t, enums.PurchaseOrderStatusCancelled, *svc.status)
}
