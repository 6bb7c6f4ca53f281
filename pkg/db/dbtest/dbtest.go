// Package dbtest opens isolated in-memory SQLite stores with the full schema for package tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
)

// Open returns a fresh database limited to a single connection, so goroutines that
// open transactions concurrently queue up behind each other the way row locks make
// them queue on Postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:shopcore_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	require.NoError(t, conn.Exec(ledgerSeqTrigger).Error)
	return conn
}

// ledgerSeqTrigger stands in for the Postgres identity column on inventory_transactions.seq.
const ledgerSeqTrigger = `CREATE TRIGGER IF NOT EXISTS inventory_transactions_seq
AFTER INSERT ON inventory_transactions FOR EACH ROW WHEN NEW.seq IS NULL
BEGIN
	UPDATE inventory_transactions SET seq = NEW.rowid WHERE rowid = NEW.rowid;
END`

// Client wraps Open in the transactional client the services depend on.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromGorm(conn), conn
}

// SeedProduct inserts a tracked, active product with the given stock.
func SeedProduct(t *testing.T, conn *gorm.DB, name string, stock int, price int64) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:               "SKU-" + uuid.NewString()[:8],
		Name:              name,
		Price:             price,
		InventoryQuantity: stock,
		TrackInventory:    true,
		Status:            "active",
	}
	require.NoError(t, conn.Create(product).Error)
	return product
}

// SeedVariant inserts a variant of product with the given stock.
func SeedVariant(t *testing.T, conn *gorm.DB, product *models.Product, name string, stock int) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{
		ProductID:         product.ID,
		SKU:               "VAR-" + uuid.NewString()[:8],
		Name:              name,
		Price:             product.Price,
		InventoryQuantity: stock,
	}
	require.NoError(t, conn.Create(variant).Error)
	return variant
}

// ReloadProduct reads the product back from the store.
func ReloadProduct(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", id).Error)
	return product
}
