package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, price, currency, discount_price, stock, is_active, is_deleted, created_at, updated_at`

// Postgres implements Store on a pool or a transaction.
type Postgres struct {
	q    postgres.DBTX
	lock bool
}

func NewPostgres(q postgres.DBTX) *Postgres { return &Postgres{q: q} }

// Locking returns a store that reads products FOR UPDATE. Only meaningful
// when q is a transaction.
func (s *Postgres) Locking() *Postgres { return &Postgres{q: s.q, lock: true} }

func (s *Postgres) suffix() string {
	if s.lock {
		return " FOR UPDATE"
	}
	return ""
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var cur string
	err := row.Scan(&p.ID, &p.Name, &p.Price, &cur, &p.DiscountPrice, &p.Stock,
		&p.IsActive, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt)
	p.Currency = Currency(cur)
	return p, err
}

func (s *Postgres) FindByID(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(s.q.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1`+s.suffix(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperr.NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query product %s: %w", id, err)
	}
	return &p, nil
}

func (s *Postgres) FindManyByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	// fixed lock order so concurrent orders over the same products can't deadlock
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rows, err := s.q.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id`+s.suffix(), sorted)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *Postgres) DecrementStock(ctx context.Context, id string, qty decimal.Decimal) (bool, error) {
	ct, err := s.q.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1 AND stock >= $2`, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock %s: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Postgres) IncrementStock(ctx context.Context, id string, qty decimal.Decimal) error {
	ct, err := s.q.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, id, qty)
	if err != nil {
		return fmt.Errorf("increment stock %s: %w", id, err)
	}
	if ct.RowsAffected() != 1 {
		return &apperr.NotFoundError{Entity: "product", ID: id}
	}
	return nil
}

// UpdateProduct writes the descriptive fields of p. Stock is only ever
// changed through DecrementStock/IncrementStock.
func (s *Postgres) UpdateProduct(ctx context.Context, p Product) error {
	ct, err := s.q.Exec(ctx, `
		UPDATE products
		SET name=$2, price=$3, currency=$4, discount_price=$5, is_active=$6, is_deleted=$7, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Name, p.Price, string(p.Currency), p.DiscountPrice, p.IsActive, p.IsDeleted)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if ct.RowsAffected() != 1 {
		return &apperr.NotFoundError{Entity: "product", ID: p.ID}
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]Product, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE NOT is_deleted ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Insert adds a product row. Used by seeding and tests; product CRUD lives
// outside this service.
func (s *Postgres) Insert(ctx context.Context, p Product) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO products(id, name, price, currency, discount_price, stock, is_active, is_deleted)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Price, string(p.Currency), p.DiscountPrice, p.Stock, p.IsActive, p.IsDeleted)
	return err
}
