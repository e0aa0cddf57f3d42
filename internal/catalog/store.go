// Package catalog owns product records and the stock quantity they carry.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the product side of a unit of work. Implementations bound to a
// transaction lock the rows they read.
type Store interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	// FindManyByIDs returns the products that exist, keyed by id.
	FindManyByIDs(ctx context.Context, ids []string) (map[string]Product, error)
	// DecrementStock subtracts qty only when stock >= qty and reports whether
	// the row was changed.
	DecrementStock(ctx context.Context, id string, qty decimal.Decimal) (bool, error)
	IncrementStock(ctx context.Context, id string, qty decimal.Decimal) error
	UpdateProduct(ctx context.Context, p Product) error
}
