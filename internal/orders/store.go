package orders

import (
	"context"

	"github.com/ariefcatur/go-pos-orders/internal/catalog"
)

// Store opens units of work and serves read-only queries.
type Store interface {
	// InTx runs fn in one atomic transaction. Nothing fn wrote survives
	// when it returns an error.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	Refunds(ctx context.Context, orderID string) ([]Refund, error)
}

// Tx is the set of writes available inside a transaction. Reads through Tx
// lock what they return until commit.
type Tx interface {
	Products() catalog.Store
	LockOrder(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	// UpdateOrder writes the order header: status, amounts, discount, rate,
	// cashier and printed flag.
	UpdateOrder(ctx context.Context, o *Order) error
	ReplaceItems(ctx context.Context, orderID string, items []OrderItem) error
	UpdateItem(ctx context.Context, it OrderItem) error
	DeleteItem(ctx context.Context, itemID string) error
	InsertRefund(ctx context.Context, r *Refund) error
}
