package models

import (
	"context"
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var (
	ErrValidation                   = errors.New("validation failed")
	ErrInvalidQuantity              = errors.New("quantity must be greater than zero")
	ErrInvalidExpiry                = errors.New("expiry date is in the past")
	ErrInvalidBloodGroup            = errors.New("invalid blood group")
	ErrIdentifierExhausted          = errors.New("could not generate a unique barcode")
	ErrInsufficientStock            = errors.New("insufficient stock")
	ErrInsufficientBatchQuantity    = errors.New("insufficient quantity in stock unit")
	ErrInconsistentTransactionShape = errors.New("inconsistent stock transaction shape")
	ErrStockTransactionImmutable    = errors.New("stock transactions cannot be modified")
	ErrLockTimeout                  = errors.New("timed out waiting for stock lock")
	ErrSameCenter                   = errors.New("supplying and receiving center must differ")
	ErrCenterNotFound               = errors.New("donation center not found")
	ErrRequestNotApproved           = errors.New("blood request is not approved")
	ErrRequestAlreadyFulfilled      = errors.New("blood request is already fulfilled")
	ErrInvalidRequestType           = errors.New("invalid blood request type for this operation")
	ErrInvalidStatusTransition      = errors.New("invalid blood request status transition")
)

// InsufficientStockError reports how many ml could not be covered.
type InsufficientStockError struct {
	Shortfall int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: short by %d ml", e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Shortfall returns the missing amount carried by err, or 0.
func Shortfall(err error) int {
	var insufficient *InsufficientStockError
	if errors.As(err, &insufficient) {
		return insufficient.Shortfall
	}
	return 0
}

// classifyLockError maps lock wait timeouts and deadlocks to ErrLockTimeout.
func classifyLockError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1205 lock wait timeout, 1213 deadlock
		if mysqlErr.Number == 1205 || mysqlErr.Number == 1213 {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
	}
	return err
}
