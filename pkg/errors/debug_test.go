package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDumpIncludesPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01", Message: "deadlock detected", TableName: "products"}
	err := Wrap(CodeConcurrency, fmt.Errorf("lock products: %w", pgErr), "reserve stock")

	d := Dump(err)
	assert.Equal(t, CodeConcurrency, d.Code)
	assert.True(t, d.Retryable)
	assert.Equal(t, "40P01", d.PGCode)
	assert.Equal(t, "products", d.PGTable)
	assert.Len(t, d.Chain, 3)
	assert.Equal(t, "40P01", SQLState(err))
}

func TestDumpIncludesPqFields(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "ux_payments_order_id"})

	d := Dump(err)
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "ux_payments_order_id", d.PGConstraint)
	assert.Empty(t, d.Code)
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
	assert.Empty(t, SQLState(nil))
}
