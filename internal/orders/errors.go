package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
)

// ValidationError is a caller error detected before any storage access.
// Safe to retry after correcting the input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// InsufficientStockError aborts a placement mid-transaction; everything
// written so far is rolled back.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// StorageError wraps a failure from the storage layer. Retryable is
// false for constraint violations, true for transient faults such as
// lock-wait timeouts and lost connections.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
