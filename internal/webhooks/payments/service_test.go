package paymentwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/internal/payments"
	"github.com/angelmondragon/shopcore-backend/pkg/bankfeed"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/idempotency"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]struct{}{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "shopcore:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type fakeReconciler struct {
	calls     int
	source    enums.PaymentSource
	transfers []payments.Transfer
	err       error
}

func (f *fakeReconciler) HandleTransfer(_ context.Context, source enums.PaymentSource, transfer payments.Transfer) (*payments.Result, error) {
	f.calls++
	f.source = source
	f.transfers = append(f.transfers, transfer)
	if f.err != nil {
		return nil, f.err
	}
	return &payments.Result{Outcome: metrics.PaymentPaid, Message: "payment confirmed"}, nil
}

func newService(t *testing.T, rec *fakeReconciler, store *memoryStore) *Service {
	t.Helper()
	params := ServiceParams{Payments: rec, APIKey: "secret-key"}
	if store != nil {
		guard, err := idempotency.NewGuard(store, time.Hour, "payments-webhook")
		require.NoError(t, err)
		params.Guard = guard
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func payload(id string) bankfeed.WebhookPayload {
	return bankfeed.WebhookPayload{
		ID:             json.Number(id),
		AccountNumber:  "0123499999",
		Content:        "ORD17000000000000001",
		TransferType:   "in",
		TransferAmount: decimal.NewFromInt(100000),
	}
}

func TestAuthorize(t *testing.T) {
	svc := newService(t, &fakeReconciler{}, nil)
	assert.True(t, svc.Authorize("Apikey secret-key"))
	assert.True(t, svc.Authorize("apikey  secret-key "))
	assert.True(t, svc.Authorize("secret-key"))
	assert.False(t, svc.Authorize("Apikey other"))
	assert.False(t, svc.Authorize(""))

	open, err := NewService(ServiceParams{Payments: &fakeReconciler{}})
	require.NoError(t, err)
	assert.False(t, open.Authorize(""))
}

func TestHandleDropsReplays(t *testing.T) {
	rec := &fakeReconciler{}
	svc := newService(t, rec, newMemoryStore())
	ctx := context.Background()

	first, err := svc.Handle(ctx, payload("1001"))
	require.NoError(t, err)
	assert.True(t, first.Paid())

	second, err := svc.Handle(ctx, payload("1001"))
	require.NoError(t, err)
	assert.Equal(t, metrics.PaymentAlreadyProcessed, second.Outcome)

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, enums.PaymentSourceWebhook, rec.source)
	require.Len(t, rec.transfers, 1)
	assert.Equal(t, "1001", rec.transfers[0].TransactionID)
	assert.True(t, rec.transfers[0].Incoming)
}

func TestHandleReleasesKeyOnFailure(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("db down")}
	svc := newService(t, rec, newMemoryStore())
	ctx := context.Background()

	_, err := svc.Handle(ctx, payload("2002"))
	require.Error(t, err)

	rec.err = nil
	result, err := svc.Handle(ctx, payload("2002"))
	require.NoError(t, err)
	assert.True(t, result.Paid())
	assert.Equal(t, 2, rec.calls)
}

func TestHandleProceedsWhenGuardFails(t *testing.T) {
	rec := &fakeReconciler{}
	store := newMemoryStore()
	store.err = errors.New("redis unavailable")
	svc := newService(t, rec, store)

	result, err := svc.Handle(context.Background(), payload("3003"))
	require.NoError(t, err)
	assert.True(t, result.Paid())
	assert.Equal(t, 1, rec.calls)
}
