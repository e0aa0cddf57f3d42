package orders

import (
	"context"
	"sort"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func validateRefund(actor Actor, in RefundInput) error {
	if actor.Role != RoleAdmin && actor.Role != RoleOwner {
		return &apperr.ForbiddenError{Msg: "only admins and owners may refund"}
	}
	if len(in.Items) == 0 {
		return apperr.Invalid("items", "at least one item is required")
	}
	seen := make(map[string]bool, len(in.Items))
	for _, l := range in.Items {
		if l.ProductID == "" {
			return apperr.Invalid("productId", "required")
		}
		if !l.Quantity.IsPositive() {
			return apperr.Invalid("quantity", "must be positive for product %s", l.ProductID)
		}
		if !fits(l.Quantity, QuantityPlaces) {
			return apperr.Invalid("quantity", "at most %d decimal places for product %s", QuantityPlaces, l.ProductID)
		}
		if seen[l.ProductID] {
			return apperr.Invalid("items", "product %s listed more than once", l.ProductID)
		}
		seen[l.ProductID] = true
	}
	return nil
}

// Refund returns items of a completed order to stock and records the money
// given back. Amounts come from the sold line economics, never the current
// catalog price.
func (e *Engine) Refund(ctx context.Context, actor Actor, orderID string, in RefundInput) (*RefundResult, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := validateRefund(actor, in); err != nil {
		return nil, err
	}

	// Stock rows are locked in product id order, the same order create takes.
	lines := append([]RefundLineInput(nil), in.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	var (
		result   *RefundResult
		restored []StockDelta
	)
	err := e.run(ctx, "refund", func(ctx context.Context, tx Tx) error {
		restored = restored[:0]
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusCompleted && o.Status != StatusPartiallyRefunded {
			return &apperr.InvalidStateError{OrderID: o.ID, From: string(o.Status), To: string(StatusPartiallyRefunded)}
		}

		amount := decimal.Zero
		var refunded []RefundedLine
		for _, l := range lines {
			idx, ok := o.item(l.ProductID)
			if !ok {
				continue
			}
			it := o.Items[idx]
			if l.Quantity.GreaterThan(it.Quantity) {
				return &apperr.OverRefundError{ProductID: l.ProductID, Requested: l.Quantity, Remaining: it.Quantity}
			}
			if err := tx.Products().IncrementStock(ctx, it.ProductID, l.Quantity); err != nil {
				return err
			}
			restored = append(restored, StockDelta{ID: it.ProductID, Quantity: l.Quantity})

			unit := it.TotalPrice.Div(it.Quantity)
			lineAmount := pricing.Money(unit.Mul(l.Quantity))
			amount = amount.Add(lineAmount)
			refunded = append(refunded, RefundedLine{ProductID: it.ProductID, Quantity: l.Quantity, Amount: lineAmount})

			remaining := it.Quantity.Sub(l.Quantity)
			if remaining.IsZero() {
				if err := tx.DeleteItem(ctx, it.ID); err != nil {
					return err
				}
				o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
				continue
			}
			it.Quantity = remaining
			it.TotalPrice = pricing.Money(it.Price.Mul(remaining))
			if err := tx.UpdateItem(ctx, it); err != nil {
				return err
			}
			o.Items[idx] = it
		}
		if len(refunded) == 0 {
			return apperr.Invalid("items", "none of the products belong to order %s", o.ID)
		}

		res := &RefundResult{Amount: amount}
		if amount.IsPositive() {
			r := &Refund{
				ID:          e.NewID(),
				OrderID:     o.ID,
				TotalAmount: amount,
				Reason:      in.Reason,
				RefundedBy:  actor.UserID,
				Items:       refunded,
				CreatedAt:   e.Now(),
			}
			if err := tx.InsertRefund(ctx, r); err != nil {
				return err
			}
			res.RefundID = r.ID
		}

		next := StatusPartiallyRefunded
		if len(o.Items) == 0 {
			next = StatusFullyRefunded
		}
		if !CanTransition(o.Status, next) {
			return &apperr.InvalidStateError{OrderID: o.ID, From: string(o.Status), To: string(next)}
		}
		o.Status = next
		if next == StatusFullyRefunded {
			o.FinalAmount = decimal.Zero
		} else {
			o.FinalAmount = pricing.Net(o.ItemsTotal(), o.DiscountAmount)
		}
		o.UpdatedAt = e.Now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		res.Order = o
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("order refunded", zap.String("order_id", orderID), zap.String("actor", actor.UserID),
		zap.Stringer("amount", result.Amount), zap.String("status", string(result.Order.Status)))
	e.emit(ctx, EventStockUpdate, StockUpdatePayload{Action: StockAdd, Items: restored}, TargetBroadcast)
	e.emit(ctx, EventOrderStatusChange, StatusChangePayload{ID: result.Order.ID, Status: result.Order.Status}, TargetBroadcast)
	return result, nil
}
