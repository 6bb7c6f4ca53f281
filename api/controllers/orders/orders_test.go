package orders

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
	internalorders "github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/payments"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type stubOrders struct {
	order        *models.Order
	err          error
	gotOwner     *uuid.UUID
	gotReason    string
	gotFilter    internalorders.ListFilter
	gotStatus    enums.OrderStatus
	gotNote      string
	gotPayStatus enums.PaymentStatus
}

func (s *stubOrders) GetByID(_ context.Context, _ uuid.UUID, ownerID *uuid.UUID) (*models.Order, error) {
	s.gotOwner = ownerID
	return s.order, s.err
}

func (s *stubOrders) FindByOrderNumber(context.Context, string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) ListByUser(context.Context, uuid.UUID, pagination.Params) (pagination.Page[models.Order], error) {
	if s.err != nil {
		return pagination.Page[models.Order]{}, s.err
	}
	return pagination.Page[models.Order]{Items: []models.Order{*s.order}}, nil
}

func (s *stubOrders) Cancel(_ context.Context, _ uuid.UUID, requesterID *uuid.UUID, reason string) (*models.Order, error) {
	s.gotOwner = requesterID
	s.gotReason = reason
	return s.order, s.err
}

func (s *stubOrders) List(_ context.Context, filter internalorders.ListFilter, _ pagination.Params) (pagination.Page[models.Order], error) {
	s.gotFilter = filter
	return pagination.Page[models.Order]{Items: []models.Order{*s.order}, NextCursor: "next"}, s.err
}

func (s *stubOrders) UpdateStatus(_ context.Context, _ uuid.UUID, status enums.OrderStatus, note string) (*models.Order, bool, error) {
	s.gotStatus = status
	s.gotNote = note
	return s.order, true, s.err
}

func (s *stubOrders) UpdateShipping(context.Context, uuid.UUID, internalorders.ShippingInput) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) UpdatePaymentStatus(_ context.Context, _ uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error) {
	s.gotPayStatus = status
	return s.order, false, s.err
}

type stubConfirmer struct {
	actor uuid.UUID
}

func (s *stubConfirmer) ConfirmManual(_ context.Context, orderID uuid.UUID, actor uuid.UUID) (*payments.Result, error) {
	s.actor = actor
	return &payments.Result{Outcome: metrics.PaymentPaid, Message: "payment confirmed", OrderID: &orderID, OrderNumber: "ORD1"}, nil
}

func sampleOrder(userID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD17000000000000001",
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		Subtotal:      200000,
		TotalAmount:   230000,
		Items: []models.OrderItem{
			{ID: uuid.New(), ProductName: "Mug", Quantity: 2, UnitPrice: 100000, TotalPrice: 200000},
		},
	}
}

func serve(t *testing.T, method, pattern, target, body string, userID uuid.UUID, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), userID, enums.UserRoleAdmin))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestGetScopesToCaller(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrders{order: sampleOrder(userID)}

	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+svc.order.ID.String(), "", userID, Get(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotOwner)
	assert.Equal(t, userID, *svc.gotOwner)

	var got OrderResponse
	decodeData(t, rec, &got)
	assert.Equal(t, svc.order.OrderNumber, got.OrderNumber)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(200000), got.Items[0].TotalPrice)
}

func TestGetRequiresIdentity(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/"+uuid.NewString(), "", uuid.Nil, Get(svc, logger.Nop()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetRejectsMalformedID(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodGet, "/orders/{orderId}", "/orders/not-a-uuid", "", uuid.New(), Get(svc, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetByNumberHidesOtherUsersOrders(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodGet, "/orders/number/{orderNumber}", "/orders/number/ord17000000000000001", "", uuid.New(), GetByNumber(svc, logger.Nop()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelPassesReasonAndRequester(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrders{order: sampleOrder(userID)}

	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+svc.order.ID.String()+"/cancel", `{"reason":"  changed my mind "}`, userID, Cancel(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "changed my mind", svc.gotReason)
	require.NotNil(t, svc.gotOwner)
	assert.Equal(t, userID, *svc.gotOwner)
}

func TestCancelWithoutBody(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrders{order: sampleOrder(userID)}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+svc.order.ID.String()+"/cancel", "", userID, Cancel(svc, logger.Nop()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.gotReason)
}

func TestCancelSurfacesStateConflict(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrders{order: sampleOrder(userID), err: pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled")}
	rec := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/"+svc.order.ID.String()+"/cancel", "", userID, Cancel(svc, logger.Nop()))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "order can no longer be cancelled")
}

func TestListReturnsPage(t *testing.T) {
	userID := uuid.New()
	svc := &stubOrders{order: sampleOrder(userID)}
	rec := serve(t, http.MethodGet, "/orders", "/orders?limit=10", "", userID, List(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	var page pagination.Page[OrderResponse]
	decodeData(t, rec, &page)
	assert.Len(t, page.Items, 1)
}

func TestAdminListParsesFilters(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodGet, "/admin/orders", "/admin/orders?status=confirmed&payment_status=paid&from=2026-01-01&to=2026-02-01", "", uuid.New(), AdminList(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotFilter.Status)
	assert.Equal(t, enums.OrderStatusConfirmed, *svc.gotFilter.Status)
	require.NotNil(t, svc.gotFilter.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusPaid, *svc.gotFilter.PaymentStatus)
	require.NotNil(t, svc.gotFilter.From)
	require.NotNil(t, svc.gotFilter.To)

	var page pagination.Page[OrderResponse]
	decodeData(t, rec, &page)
	assert.Equal(t, "next", page.NextCursor)
}

func TestAdminListRejectsBadFilters(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	for _, query := range []string{"status=lost", "payment_status=maybe", "from=2026-02-01&to=2026-01-01", "from=yesterday"} {
		rec := serve(t, http.MethodGet, "/admin/orders", "/admin/orders?"+query, "", uuid.New(), AdminList(svc, logger.Nop()))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdminUpdateStatus(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodPatch, "/admin/orders/{orderId}/status", "/admin/orders/"+svc.order.ID.String()+"/status", `{"status":"shipped","note":"left warehouse"}`, uuid.New(), AdminUpdateStatus(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.OrderStatusShipped, svc.gotStatus)
	assert.Equal(t, "left warehouse", svc.gotNote)

	var got mutationResponse
	decodeData(t, rec, &got)
	assert.True(t, got.Changed)
}

func TestAdminUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodPatch, "/admin/orders/{orderId}/status", "/admin/orders/"+svc.order.ID.String()+"/status", `{"status":"teleported"}`, uuid.New(), AdminUpdateStatus(svc, logger.Nop()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdatePaymentStatusReportsNoop(t *testing.T) {
	svc := &stubOrders{order: sampleOrder(uuid.New())}
	rec := serve(t, http.MethodPatch, "/admin/orders/{orderId}/payment-status", "/admin/orders/"+svc.order.ID.String()+"/payment-status", `{"payment_status":"refunded"}`, uuid.New(), AdminUpdatePaymentStatus(svc, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.PaymentStatusRefunded, svc.gotPayStatus)
	var got mutationResponse
	decodeData(t, rec, &got)
	assert.False(t, got.Changed)
}

func TestAdminConfirmPaymentUsesCaller(t *testing.T) {
	admin := uuid.New()
	confirmer := &stubConfirmer{}
	orderID := uuid.New()
	rec := serve(t, http.MethodPost, "/admin/orders/{orderId}/confirm-payment", "/admin/orders/"+orderID.String()+"/confirm-payment", "", admin, AdminConfirmPayment(confirmer, logger.Nop()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin, confirmer.actor)
	var got payments.Result
	decodeData(t, rec, &got)
	assert.Equal(t, metrics.PaymentPaid, got.Outcome)
}
