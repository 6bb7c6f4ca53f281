package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/shopcore-backend/internal/checkout"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	rec := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Shopcore-Env"))
	assert.Contains(t, rec.Body.String(), `"live"`)
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]Pinger{"postgres": ok, "redis": ok}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), map[string]Pinger{"postgres": ok, "redis": down}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"down"`)
}

type stubCheckout struct {
	userID uuid.UUID
	input  checkoutsvc.Input
	err    error
}

func (s *stubCheckout) CreateOrder(_ context.Context, userID uuid.UUID, input checkoutsvc.Input) (*models.Order, error) {
	s.userID = userID
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: uuid.New(), OrderNumber: "ORD17000000000000001", UserID: userID, Status: enums.OrderStatusPending, TotalAmount: 230000}, nil
}

const checkoutBody = `{"customer_name":"Lan","customer_email":"lan@example.com","customer_phone":"0900000000","shipping_address":"1 Main St","shipping_city":"Hanoi","notes":"  ring twice  "}`

func checkoutRequest(userID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), userID, enums.UserRoleCustomer))
	}
	return req
}

func TestCheckoutCreatesOrder(t *testing.T) {
	svc := &stubCheckout{}
	userID := uuid.New()
	rec := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(rec, checkoutRequest(userID, checkoutBody))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, userID, svc.userID)
	require.NotNil(t, svc.input.Notes)
	assert.Equal(t, "ring twice", *svc.input.Notes)

	var envelope struct {
		Data struct {
			OrderNumber string `json:"order_number"`
			Status      string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ORD17000000000000001", envelope.Data.OrderNumber)
	assert.Equal(t, "pending", envelope.Data.Status)
}

func TestCheckoutRejectsInvalidInput(t *testing.T) {
	svc := &stubCheckout{}
	rec := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(rec, checkoutRequest(uuid.New(), `{"customer_name":"Lan","customer_email":"nope"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.userID)
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	Checkout(&stubCheckout{}, logger.Nop()).ServeHTTP(rec, checkoutRequest(uuid.Nil, checkoutBody))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutInsufficientStockCarriesShortfalls(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails([]map[string]any{{"name": "Mug", "requested": 3, "available": 1}})}
	rec := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(rec, checkoutRequest(uuid.New(), checkoutBody))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":1`)
}
