// Package apperr holds the typed errors returned by the order engine and its
// collaborators. Callers match them with errors.As.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %s, available %s",
		e.ProductID, e.Name, e.Requested, e.Available)
}

// InvalidProductError is returned for missing, inactive or deleted products.
type InvalidProductError struct {
	ProductID string
	Reason    string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product %s: %s", e.ProductID, e.Reason)
}

type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Msg }

type InvalidStateError struct {
	OrderID string
	From    string
	To      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

type OverRefundError struct {
	ProductID string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverRefundError) Error() string {
	return fmt.Sprintf("refund of %s exceeds remaining %s for product %s",
		e.Requested, e.Remaining, e.ProductID)
}

type DiscountExceedsTotalError struct {
	Discount decimal.Decimal
	Total    decimal.Decimal
}

func (e *DiscountExceedsTotalError) Error() string {
	return fmt.Sprintf("discount %s exceeds items total %s", e.Discount, e.Total)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }

// ConflictError wraps a serialization or deadlock failure reported by the database.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string { return "transaction conflict: " + e.Err.Error() }
func (e *ConflictError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string { return e.Op + ": transaction timed out" }
func (e *TimeoutError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed when sent again.
func Retryable(err error) bool {
	var (
		stock    *InsufficientStockError
		conflict *ConflictError
		timeout  *TimeoutError
	)
	return errors.As(err, &stock) || errors.As(err, &conflict) || errors.As(err, &timeout)
}
