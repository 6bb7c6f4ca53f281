package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
)

func TestGetCartComputesTotals(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()
	variantID := uuid.New()

	require.NoError(t, conn.Create(&[]models.CartItem{
		{UserID: userID, ProductID: uuid.New(), ProductName: "Tea", Quantity: 2, UnitPrice: 45000},
		{UserID: userID, ProductID: uuid.New(), VariantID: &variantID, ProductName: "Cup", Quantity: 1, UnitPrice: 30000},
		{UserID: uuid.New(), ProductID: uuid.New(), ProductName: "Other", Quantity: 9, UnitPrice: 1},
	}).Error)

	cart, err := svc.GetCart(ctx, nil, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, int64(120000), cart.Total)
	assert.False(t, cart.IsEmpty())

	require.NoError(t, svc.Clear(ctx, nil, userID))
	cart, err = svc.GetCart(ctx, nil, userID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}
