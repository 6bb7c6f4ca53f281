package db

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"gorm.io/gorm"
)

// SQLSTATE values that mean "another transaction got in the way; retry from scratch".
var concurrencySQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled (lock_timeout / statement_timeout)
}

// ClassifyError maps raw driver errors onto the typed error taxonomy. Errors that are
// already typed pass through untouched.
func ClassifyError(err error, step string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "record not found")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, step)
	}
	if IsConcurrencyConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, step)
	}
	return err
}

// IsConcurrencyConflict reports whether err is a lock wait timeout, deadlock or
// serialization failure.
func IsConcurrencyConflict(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := concurrencySQLStates[pkgerrors.SQLState(err)]; ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "lock timeout") ||
		strings.Contains(msg, "database is locked")
}

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pkgerrors.SQLState(err) == "23505" {
		return constraintName == "" || strings.Contains(err.Error(), constraintName)
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
