package orders

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/metrics"
	"github.com/ariefcatur/go-pos-orders/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher delivers post-commit notifications. Delivery is best effort.
type Publisher interface {
	Emit(ctx context.Context, event string, payload any, target string) error
}

const (
	DefaultTxTimeout      = 5 * time.Second
	DefaultPublishTimeout = 2 * time.Second
	DefaultListLimit      = 50
	MaxListLimit          = 500

	// Column scales of quantity/stock and exchange_rate.
	QuantityPlaces = 3
	RatePlaces     = 4
)

// Engine runs order mutations against a Store, one transaction per call.
type Engine struct {
	Store          Store
	Publisher      Publisher
	Pricing        pricing.Calculator
	Log            *zap.Logger
	Metrics        *metrics.Metrics
	TxTimeout      time.Duration
	PublishTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

func NewEngine(store Store, pub Publisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Store:          store,
		Publisher:      pub,
		Pricing:        pricing.Calculator{Policy: pricing.Reject},
		Log:            log,
		TxTimeout:      DefaultTxTimeout,
		PublishTimeout: DefaultPublishTimeout,
		Now:            func() time.Time { return time.Now().UTC() },
		NewID:          uuid.NewString,
	}
}

func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	timeout := e.TxTimeout
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := e.Store.InTx(ctx, fn)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = &apperr.TimeoutError{Op: op, Err: err}
	}
	e.Metrics.ObserveOp(op, err)
	return err
}

// emit runs after commit; a failure is logged and never returned.
func (e *Engine) emit(ctx context.Context, event string, payload any, target string) {
	if e.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.PublishTimeout)
	defer cancel()
	if err := e.Publisher.Emit(ctx, event, payload, target); err != nil {
		e.Metrics.PublishFailed(event)
		e.Log.Warn("publish failed", zap.String("event", event), zap.String("target", target), zap.Error(err))
	}
}

func checkActor(a Actor) error {
	if a.UserID == "" {
		return &apperr.ForbiddenError{Msg: "missing user"}
	}
	if !a.Role.Valid() {
		return &apperr.ForbiddenError{Msg: "unknown role " + string(a.Role)}
	}
	return nil
}

// requestedQty validates item input and returns quantities by product.
func requestedQty(items []ItemInput) (map[string]decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, apperr.Invalid("items", "at least one item is required")
	}
	out := make(map[string]decimal.Decimal, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, apperr.Invalid("productId", "required")
		}
		if !it.Quantity.IsPositive() {
			return nil, apperr.Invalid("quantity", "must be positive for product %s", it.ProductID)
		}
		if !fits(it.Quantity, QuantityPlaces) {
			return nil, apperr.Invalid("quantity", "at most %d decimal places for product %s", QuantityPlaces, it.ProductID)
		}
		if _, dup := out[it.ProductID]; dup {
			return nil, apperr.Invalid("items", "product %s listed more than once", it.ProductID)
		}
		out[it.ProductID] = it.Quantity
	}
	return out, nil
}

func checkRate(rate decimal.Decimal) error {
	if !fits(rate, RatePlaces) {
		return apperr.Invalid("exchangeRate", "at most %d decimal places", RatePlaces)
	}
	return nil
}

// fits reports whether d is stored exactly at the given scale.
func fits(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sellable(products map[string]catalog.Product, id string) (catalog.Product, error) {
	p, ok := products[id]
	if !ok {
		return catalog.Product{}, &apperr.InvalidProductError{ProductID: id, Reason: "not found"}
	}
	if ok, reason := p.Sellable(); !ok {
		return catalog.Product{}, &apperr.InvalidProductError{ProductID: id, Reason: reason}
	}
	return p, nil
}

// take removes qty from stock with the conditional decrement.
func take(ctx context.Context, tx Tx, p catalog.Product, qty decimal.Decimal) error {
	if p.Stock.LessThan(qty) {
		return &apperr.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock}
	}
	ok, err := tx.Products().DecrementStock(ctx, p.ID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return &apperr.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock}
	}
	return nil
}

func (e *Engine) priceItems(items []ItemInput, products map[string]catalog.Product, d pricing.Discount, rate decimal.Decimal) (pricing.Result, error) {
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, pricing.Line{Product: products[it.ProductID], Quantity: it.Quantity, ManualPrice: it.Price})
	}
	return e.Pricing.Price(lines, d, rate)
}

func (e *Engine) buildItems(orderID string, items []ItemInput, res pricing.Result) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for i, it := range items {
		pl := res.Lines[i]
		out = append(out, OrderItem{
			ID:                  e.NewID(),
			OrderID:             orderID,
			ProductID:           it.ProductID,
			Quantity:            it.Quantity,
			Price:               pl.SoldUnitPrice,
			OriginalPrice:       pl.OriginalUnitPrice,
			TotalPrice:          pl.LineSold,
			ManualDiscountValue: it.ManualDiscountValue,
			ManualDiscountType:  it.ManualDiscountType,
		})
	}
	return out
}

func applyTotals(o *Order, res pricing.Result, d pricing.Discount, rate decimal.Decimal) {
	o.ExchangeRate = rate
	o.TotalAmount = res.TotalAmount
	o.DiscountAmount = res.DiscountAmount
	o.FinalAmount = res.FinalAmount
	o.DiscountType = d.Kind
	o.DiscountValue = d.Value
}

func (e *Engine) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*Order, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	want, err := requestedQty(in.Items)
	if err != nil {
		return nil, err
	}
	if err := checkRate(in.ExchangeRate); err != nil {
		return nil, err
	}

	var (
		order  *Order
		deltas []StockDelta
	)
	err = e.run(ctx, "create", func(ctx context.Context, tx Tx) error {
		deltas = deltas[:0]
		products, err := tx.Products().FindManyByIDs(ctx, sortedKeys(want))
		if err != nil {
			return err
		}
		for _, it := range in.Items {
			p, err := sellable(products, it.ProductID)
			if err != nil {
				return err
			}
			if p.Stock.LessThan(it.Quantity) {
				return &apperr.InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: it.Quantity, Available: p.Stock}
			}
		}
		res, err := e.priceItems(in.Items, products, in.Discount, in.ExchangeRate)
		if err != nil {
			return err
		}
		for _, id := range sortedKeys(want) {
			if err := take(ctx, tx, products[id], want[id]); err != nil {
				return err
			}
			deltas = append(deltas, StockDelta{ID: id, Quantity: want[id]})
		}

		now := e.Now()
		o := &Order{
			ID:            e.NewID(),
			Status:        StatusDraft,
			Currency:      pricing.Settlement,
			SellerID:      actor.UserID,
			PartnerID:     in.PartnerID,
			CustomerName:  in.CustomerName,
			Type:          in.Type,
			PaymentMethod: in.PaymentMethod,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		applyTotals(o, res, in.Discount, in.ExchangeRate)
		o.Items = e.buildItems(o.ID, in.Items, res)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.ReplaceItems(ctx, o.ID, o.Items); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("order created", zap.String("order_id", order.ID), zap.String("actor", actor.UserID),
		zap.Stringer("final_amount", order.FinalAmount))
	e.emit(ctx, EventNewOrder, NewOrderPayload{
		ID:           order.ID,
		SellerID:     order.SellerID,
		CustomerName: order.CustomerName,
		TotalAmount:  order.TotalAmount,
		CreatedAt:    order.CreatedAt,
	}, TargetAdmin)
	e.emit(ctx, EventStockUpdate, StockUpdatePayload{Action: StockSubtract, Items: deltas}, TargetBroadcast)
	return order, nil
}

// UpdateOrder replaces the items and discount of a draft order. Stock moves
// only by the per-product difference between the old and new quantities.
func (e *Engine) UpdateOrder(ctx context.Context, actor Actor, orderID string, in UpdateOrderInput) (*Order, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	want, err := requestedQty(in.Items)
	if err != nil {
		return nil, err
	}
	if err := checkRate(in.ExchangeRate); err != nil {
		return nil, err
	}

	var (
		order           *Order
		added, subtract []StockDelta
	)
	err = e.run(ctx, "update", func(ctx context.Context, tx Tx) error {
		added, subtract = added[:0], subtract[:0]
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft {
			return &apperr.InvalidStateError{OrderID: o.ID, From: string(o.Status), To: "edit"}
		}
		if actor.Role == RoleSeller && actor.UserID != o.SellerID {
			return &apperr.ForbiddenError{Msg: "sellers may only edit their own orders"}
		}

		had := make(map[string]decimal.Decimal, len(o.Items))
		for _, it := range o.Items {
			had[it.ProductID] = had[it.ProductID].Add(it.Quantity)
		}
		union := make(map[string]decimal.Decimal, len(had)+len(want))
		for id := range had {
			union[id] = decimal.Zero
		}
		for id := range want {
			union[id] = decimal.Zero
		}
		products, err := tx.Products().FindManyByIDs(ctx, sortedKeys(union))
		if err != nil {
			return err
		}
		for _, it := range in.Items {
			if _, err := sellable(products, it.ProductID); err != nil {
				return err
			}
		}
		res, err := e.priceItems(in.Items, products, in.Discount, in.ExchangeRate)
		if err != nil {
			return err
		}

		for _, id := range sortedKeys(union) {
			diff := want[id].Sub(had[id])
			switch diff.Sign() {
			case 1:
				if err := take(ctx, tx, products[id], diff); err != nil {
					return err
				}
				subtract = append(subtract, StockDelta{ID: id, Quantity: diff})
			case -1:
				if err := tx.Products().IncrementStock(ctx, id, diff.Neg()); err != nil {
					return err
				}
				added = append(added, StockDelta{ID: id, Quantity: diff.Neg()})
			}
		}

		applyTotals(o, res, in.Discount, in.ExchangeRate)
		o.Items = e.buildItems(o.ID, in.Items, res)
		o.UpdatedAt = e.Now()
		if err := tx.ReplaceItems(ctx, o.ID, o.Items); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("order updated", zap.String("order_id", order.ID), zap.String("actor", actor.UserID))
	e.emit(ctx, EventOrderUpdated, OrderUpdatedPayload{
		ID:          order.ID,
		SellerID:    order.SellerID,
		UpdatedBy:   actor.UserID,
		TotalAmount: order.TotalAmount,
	}, TargetAdmin)
	if len(subtract) > 0 {
		e.emit(ctx, EventStockUpdate, StockUpdatePayload{Action: StockSubtract, Items: subtract}, TargetBroadcast)
	}
	if len(added) > 0 {
		e.emit(ctx, EventStockUpdate, StockUpdatePayload{Action: StockAdd, Items: added}, TargetBroadcast)
	}
	return order, nil
}

// UpdateStatus confirms or cancels a draft order. Cancelling returns every
// item's quantity to stock.
func (e *Engine) UpdateStatus(ctx context.Context, actor Actor, orderID string, status Status) (*Order, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if status != StatusCompleted && status != StatusCancelled {
		return nil, apperr.Invalid("status", "must be %s or %s", StatusCompleted, StatusCancelled)
	}
	if actor.Role == RoleSeller {
		return nil, &apperr.ForbiddenError{Msg: "sellers may not change order status"}
	}

	var (
		order    *Order
		restored []StockDelta
	)
	err := e.run(ctx, "status", func(ctx context.Context, tx Tx) error {
		restored = restored[:0]
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft || !CanTransition(o.Status, status) {
			return &apperr.InvalidStateError{OrderID: o.ID, From: string(o.Status), To: string(status)}
		}
		switch status {
		case StatusCancelled:
			// Same row lock order as create and edit.
			items := append([]OrderItem(nil), o.Items...)
			sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
			for _, it := range items {
				if err := tx.Products().IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
				restored = append(restored, StockDelta{ID: it.ProductID, Quantity: it.Quantity})
			}
		case StatusCompleted:
			o.CashierID = actor.UserID
		}
		o.Status = status
		o.UpdatedAt = e.Now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("order status changed", zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)), zap.String("actor", actor.UserID))
	if len(restored) > 0 {
		e.emit(ctx, EventStockUpdate, StockUpdatePayload{Action: StockAdd, Items: restored}, TargetBroadcast)
	}
	e.emit(ctx, EventOrderStatusChange, StatusChangePayload{ID: order.ID, Status: order.Status}, TargetBroadcast)
	return order, nil
}

func (e *Engine) MarkAsPrinted(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	var order *Order
	err := e.run(ctx, "print", func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return &apperr.InvalidStateError{OrderID: o.ID, From: string(o.Status), To: "printed"}
		}
		if !o.IsPrinted {
			o.IsPrinted = true
			o.UpdatedAt = e.Now()
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, EventOrderPrinted, OrderPrintedPayload{Order: order.View()}, TargetAdmin)
	return order, nil
}

func (e *Engine) GetByID(ctx context.Context, id string) (*Order, error) {
	return e.Store.GetOrder(ctx, id)
}

// GetRefunds returns the refund ledger of an order.
func (e *Engine) GetRefunds(ctx context.Context, orderID string) ([]Refund, error) {
	if _, err := e.Store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return e.Store.Refunds(ctx, orderID)
}

func (e *Engine) GetAll(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown status %q", f.Status)
	}
	if f.Offset < 0 {
		return nil, apperr.Invalid("offset", "must not be negative")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	return e.Store.ListOrders(ctx, f)
}

func (e *Engine) GetBySellerID(ctx context.Context, actor Actor, sellerID string, f ListFilter) ([]Order, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if actor.Role == RoleSeller && actor.UserID != sellerID {
		return nil, &apperr.ForbiddenError{Msg: "sellers may only list their own orders"}
	}
	f.SellerID = sellerID
	return e.GetAll(ctx, f)
}
