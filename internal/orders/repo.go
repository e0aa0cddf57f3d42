package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/postgres"
	"github.com/ariefcatur/go-pos-orders/internal/pricing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, status, currency, exchange_rate, total_amount, discount_amount, final_amount,
	discount_value, discount_type, seller_id, cashier_id, partner_id, customer_name, order_type,
	payment_method, is_printed, created_at, updated_at`

const itemColumns = `id, order_id, product_id, quantity, price, original_price, total_price,
	manual_discount_value, manual_discount_type`

func classify(err error) error {
	if err == nil {
		return nil
	}
	if postgres.IsConflict(err) {
		return &apperr.ConflictError{Err: err}
	}
	return err
}

func (r *Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx, products: catalog.NewPostgres(tx).Locking()}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                       Order
		status, cur, discountTy string
	)
	err := row.Scan(&o.ID, &status, &cur, &o.ExchangeRate, &o.TotalAmount, &o.DiscountAmount, &o.FinalAmount,
		&o.DiscountValue, &discountTy, &o.SellerID, &o.CashierID, &o.PartnerID, &o.CustomerName, &o.Type,
		&o.PaymentMethod, &o.IsPrinted, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	o.Currency = catalog.Currency(cur)
	o.DiscountType = pricing.DiscountKind(discountTy)
	return &o, nil
}

func loadItems(ctx context.Context, q postgres.DBTX, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price, &it.OriginalPrice,
			&it.TotalPrice, &it.ManualDiscountValue, &it.ManualDiscountType); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func getOrder(ctx context.Context, q postgres.DBTX, id, suffix string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query order %s: %w", id, err)
	}
	items, err := loadItems(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, r.DB, id, "")
}

func (r *Repo) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var (
		out []Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := loadItems(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

type pgTx struct {
	tx       pgx.Tx
	products *catalog.Postgres
}

func (t *pgTx) Products() catalog.Store { return t.products }

func (t *pgTx) LockOrder(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, t.tx, id, " FOR UPDATE")
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, string(o.Status), string(o.Currency), o.ExchangeRate, o.TotalAmount, o.DiscountAmount, o.FinalAmount,
		o.DiscountValue, string(o.DiscountType), o.SellerID, o.CashierID, o.PartnerID, o.CustomerName, o.Type,
		o.PaymentMethod, o.IsPrinted, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, exchange_rate=$3, total_amount=$4, discount_amount=$5, final_amount=$6,
			discount_value=$7, discount_type=$8, cashier_id=$9, is_printed=$10, updated_at=$11
		WHERE id=$1`,
		o.ID, string(o.Status), o.ExchangeRate, o.TotalAmount, o.DiscountAmount, o.FinalAmount,
		o.DiscountValue, string(o.DiscountType), o.CashierID, o.IsPrinted, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if ct.RowsAffected() != 1 {
		return &apperr.NotFoundError{Entity: "order", ID: o.ID}
	}
	return nil
}

func (t *pgTx) ReplaceItems(ctx context.Context, orderID string, items []OrderItem) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	for i, it := range items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, line_no, product_id, quantity, price, original_price, total_price,
				manual_discount_value, manual_discount_type)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			it.ID, orderID, i, it.ProductID, it.Quantity, it.Price, it.OriginalPrice, it.TotalPrice,
			it.ManualDiscountValue, it.ManualDiscountType)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) UpdateItem(ctx context.Context, it OrderItem) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_items SET quantity=$2, total_price=$3 WHERE id=$1`,
		it.ID, it.Quantity, it.TotalPrice)
	if err != nil {
		return fmt.Errorf("update order item %s: %w", it.ID, err)
	}
	return nil
}

func (t *pgTx) DeleteItem(ctx context.Context, itemID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE id=$1`, itemID); err != nil {
		return fmt.Errorf("delete order item %s: %w", itemID, err)
	}
	return nil
}

func (t *pgTx) InsertRefund(ctx context.Context, r *Refund) error {
	lines, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("marshal refund items: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO refunds(id, order_id, total_amount, reason, refunded_by, items, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.OrderID, r.TotalAmount, r.Reason, r.RefundedBy, lines, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// Refunds lists the ledger entries of an order, oldest first.
func (r *Repo) Refunds(ctx context.Context, orderID string) ([]Refund, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, total_amount, reason, refunded_by, items, created_at
		FROM refunds WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Refund
	for rows.Next() {
		var (
			ref   Refund
			lines []byte
		)
		if err := rows.Scan(&ref.ID, &ref.OrderID, &ref.TotalAmount, &ref.Reason, &ref.RefundedBy, &lines, &ref.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &ref.Items); err != nil {
			return nil, fmt.Errorf("unmarshal refund items: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

var _ Store = (*Repo)(nil)
