// Package memstore is an in-memory orders.Store. Transactions run one at a
// time against a copy-on-write overlay that is merged only on success.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type Store struct {
	sem chan struct{} // held by the running transaction

	mu       sync.RWMutex // guards the committed state below
	products map[string]catalog.Product
	orders   map[string]*orders.Order
	refunds  []orders.Refund
}

func New() *Store {
	return &Store{
		sem:      make(chan struct{}, 1),
		products: make(map[string]catalog.Product),
		orders:   make(map[string]*orders.Order),
	}
}

// Put inserts or replaces a product outside any transaction.
func (s *Store) Put(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func cloneOrder(o *orders.Order) *orders.Order {
	c := *o
	c.Items = append([]orders.OrderItem(nil), o.Items...)
	return &c
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	tx := &memTx{
		base:     s,
		products: make(map[string]catalog.Product),
		orders:   make(map[string]*orders.Order),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range tx.products {
		s.products[id] = p
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	s.refunds = append(s.refunds, tx.refunds...)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	s.mu.RLock()
	var out []orders.Order
	for _, o := range s.orders {
		switch {
		case f.Status != "" && o.Status != f.Status:
			continue
		case f.SellerID != "" && o.SellerID != f.SellerID:
			continue
		case !f.From.IsZero() && o.CreatedAt.Before(f.From):
			continue
		case !f.To.IsZero() && !o.CreatedAt.Before(f.To):
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Refunds(_ context.Context, orderID string) ([]orders.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []orders.Refund
	for _, r := range s.refunds {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) List(_ context.Context) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.IsDeleted {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "product", ID: id}
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p catalog.Product) error {
	return s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return tx.Products().UpdateProduct(ctx, p)
	})
}

// Stock returns the committed stock of a product, zero when unknown.
func (s *Store) Stock(id string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products[id].Stock
}

type memTx struct {
	base     *Store
	products map[string]catalog.Product
	orders   map[string]*orders.Order
	refunds  []orders.Refund
}

func (t *memTx) Products() catalog.Store { return (*memCatalog)(t) }

func (t *memTx) product(id string) (catalog.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	t.base.mu.RLock()
	p, ok := t.base.products[id]
	t.base.mu.RUnlock()
	if ok {
		t.products[id] = p
	}
	return p, ok
}

func (t *memTx) order(id string) (*orders.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o, true
	}
	t.base.mu.RLock()
	o, ok := t.base.orders[id]
	t.base.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := cloneOrder(o)
	t.orders[id] = c
	return c, true
}

func (t *memTx) LockOrder(_ context.Context, id string) (*orders.Order, error) {
	o, ok := t.order(id)
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (t *memTx) InsertOrder(_ context.Context, o *orders.Order) error {
	if _, ok := t.order(o.ID); ok {
		return apperr.Invalid("id", "order %s already exists", o.ID)
	}
	c := cloneOrder(o)
	c.Items = nil
	t.orders[o.ID] = c
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *orders.Order) error {
	cur, ok := t.order(o.ID)
	if !ok {
		return &apperr.NotFoundError{Entity: "order", ID: o.ID}
	}
	items := cur.Items
	*cur = *o
	cur.Items = items
	return nil
}

func (t *memTx) ReplaceItems(_ context.Context, orderID string, items []orders.OrderItem) error {
	o, ok := t.order(orderID)
	if !ok {
		return &apperr.NotFoundError{Entity: "order", ID: orderID}
	}
	o.Items = append([]orders.OrderItem(nil), items...)
	return nil
}

func (t *memTx) UpdateItem(_ context.Context, it orders.OrderItem) error {
	o, ok := t.order(it.OrderID)
	if !ok {
		return &apperr.NotFoundError{Entity: "order", ID: it.OrderID}
	}
	for i := range o.Items {
		if o.Items[i].ID == it.ID {
			o.Items[i].Quantity = it.Quantity
			o.Items[i].TotalPrice = it.TotalPrice
			return nil
		}
	}
	return &apperr.NotFoundError{Entity: "order item", ID: it.ID}
}

func (t *memTx) DeleteItem(_ context.Context, itemID string) error {
	for _, o := range t.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items = append(o.Items[:i], o.Items[i+1:]...)
				return nil
			}
		}
	}
	t.base.mu.RLock()
	var owner string
	for id, o := range t.base.orders {
		for _, it := range o.Items {
			if it.ID == itemID {
				owner = id
			}
		}
	}
	t.base.mu.RUnlock()
	if owner == "" {
		return &apperr.NotFoundError{Entity: "order item", ID: itemID}
	}
	t.order(owner)
	return t.DeleteItem(context.Background(), itemID)
}

func (t *memTx) InsertRefund(_ context.Context, r *orders.Refund) error {
	c := *r
	c.Items = append([]orders.RefundedLine(nil), r.Items...)
	t.refunds = append(t.refunds, c)
	return nil
}

type memCatalog memTx

func (c *memCatalog) tx() *memTx { return (*memTx)(c) }

func (c *memCatalog) FindByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := c.tx().product(id)
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "product", ID: id}
	}
	return &p, nil
}

func (c *memCatalog) FindManyByIDs(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.tx().product(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *memCatalog) DecrementStock(_ context.Context, id string, qty decimal.Decimal) (bool, error) {
	p, ok := c.tx().product(id)
	if !ok || p.Stock.LessThan(qty) {
		return false, nil
	}
	p.Stock = p.Stock.Sub(qty)
	c.products[id] = p
	return true, nil
}

func (c *memCatalog) IncrementStock(_ context.Context, id string, qty decimal.Decimal) error {
	p, ok := c.tx().product(id)
	if !ok {
		return &apperr.NotFoundError{Entity: "product", ID: id}
	}
	p.Stock = p.Stock.Add(qty)
	c.products[id] = p
	return nil
}

func (c *memCatalog) UpdateProduct(_ context.Context, p catalog.Product) error {
	cur, ok := c.tx().product(p.ID)
	if !ok {
		return &apperr.NotFoundError{Entity: "product", ID: p.ID}
	}
	p.Stock = cur.Stock
	c.products[p.ID] = p
	return nil
}

var (
	_ orders.Store  = (*Store)(nil)
	_ catalog.Store = (*memCatalog)(nil)
)
