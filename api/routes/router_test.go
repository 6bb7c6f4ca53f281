package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/api/controllers"
	checkoutsvc "github.com/angelmondragon/shopcore-backend/internal/checkout"
	internalorders "github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/payments"
	pkgAuth "github.com/angelmondragon/shopcore-backend/pkg/auth"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubOrders struct {
	lastNumber string
}

func (s *stubOrders) GetByID(_ context.Context, id uuid.UUID, ownerID *uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: id, UserID: *ownerID}, nil
}

func (s *stubOrders) FindByOrderNumber(_ context.Context, number string) (*models.Order, error) {
	s.lastNumber = number
	return &models.Order{ID: uuid.New(), OrderNumber: number}, nil
}

func (s *stubOrders) ListByUser(context.Context, uuid.UUID, pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

func (s *stubOrders) Cancel(_ context.Context, id uuid.UUID, _ *uuid.UUID, _ string) (*models.Order, error) {
	return &models.Order{ID: id, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrders) List(context.Context, internalorders.ListFilter, pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, id uuid.UUID, status enums.OrderStatus, _ string) (*models.Order, bool, error) {
	return &models.Order{ID: id, Status: status}, true, nil
}

func (s *stubOrders) UpdateShipping(_ context.Context, id uuid.UUID, _ internalorders.ShippingInput) (*models.Order, error) {
	return &models.Order{ID: id}, nil
}

func (s *stubOrders) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status enums.PaymentStatus) (*models.Order, bool, error) {
	return &models.Order{ID: id, PaymentStatus: status}, true, nil
}

type stubCheckout struct{}

func (stubCheckout) CreateOrder(_ context.Context, userID uuid.UUID, _ checkoutsvc.Input) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), UserID: userID, OrderNumber: "ORD17000000000000001"}, nil
}

type stubWebhook struct{}

func (stubWebhook) Authorize(header string) bool { return header == "Apikey secret" }

func (stubWebhook) Handle(context.Context, bankfeed.WebhookPayload) (*payments.Result, error) {
	return &payments.Result{Outcome: "paid", Message: "ok"}, nil
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "shopcore", ExpirationMinutes: 15},
		HTTP: config.HTTPConfig{
			CORSAllowedOrigins: []string{"http://localhost:3000"},
			CheckoutRateLimit:  1,
			CheckoutRateWindow: time.Minute,
			IdempotencyTTL:     time.Hour,
		},
	}
}

func newTestRouter(t *testing.T, orders *stubOrders, cache Cache) http.Handler {
	t.Helper()
	return NewRouter(Params{
		Config:         testConfig(),
		Logger:         logger.Nop(),
		Health:         map[string]controllers.Pinger{"postgres": stubPinger{}},
		Cache:          cache,
		Gatherer:       prometheus.NewRegistry(),
		Checkout:       stubCheckout{},
		Orders:         orders,
		PaymentWebhook: stubWebhook{},
	})
}

func token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	tok, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), uuid.New(), role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func send(router http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, nil)

	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/health/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/metrics", "", "").Code)
}

func TestCustomerRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, nil)

	assert.Equal(t, http.StatusUnauthorized, send(router, http.MethodGet, "/api/v1/orders", "", "").Code)
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/api/v1/orders", token(t, enums.UserRoleCustomer), "").Code)
}

func TestOrderByNumberRoute(t *testing.T) {
	orders := &stubOrders{}
	router := newTestRouter(t, orders, nil)

	send(router, http.MethodGet, "/api/v1/orders/by-number/ORD17000000000000001", token(t, enums.UserRoleCustomer), "")
	assert.Equal(t, "ORD17000000000000001", orders.lastNumber)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, nil)

	assert.Equal(t, http.StatusUnauthorized, send(router, http.MethodGet, "/api/admin/v1/orders", "", "").Code)
	assert.Equal(t, http.StatusForbidden, send(router, http.MethodGet, "/api/admin/v1/orders", token(t, enums.UserRoleCustomer), "").Code)
	assert.Equal(t, http.StatusOK, send(router, http.MethodGet, "/api/admin/v1/orders", token(t, enums.UserRoleAdmin), "").Code)
}

func TestPaymentWebhookIsPublicButKeyed(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, nil)
	body := `{"id":1,"transferType":"in","transferAmount":100000,"content":"ORD17000000000000001"}`

	assert.Equal(t, http.StatusUnauthorized, send(router, http.MethodPost, "/api/v1/webhooks/payments", "", body).Code)
	assert.Equal(t, http.StatusOK, send(router, http.MethodPost, "/api/v1/webhooks/payments", "Apikey secret", body).Code)
}

func TestCheckoutIsRateLimitedPerUser(t *testing.T) {
	router := newTestRouter(t, &stubOrders{}, newMemoryCache())
	auth := token(t, enums.UserRoleCustomer)
	body := `{"customer_name":"Lan","customer_email":"lan@example.com","customer_phone":"0900","shipping_address":"1 Main St","shipping_city":"Hanoi"}`

	assert.Equal(t, http.StatusCreated, send(router, http.MethodPost, "/api/v1/checkout", auth, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(router, http.MethodPost, "/api/v1/checkout", auth, body).Code)
}
