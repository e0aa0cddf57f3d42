package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	UZS Currency = "UZS"
	USD Currency = "USD"
)

func (c Currency) Valid() bool { return c == UZS || c == USD }

type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	Currency      Currency
	DiscountPrice decimal.NullDecimal // promo price, catalog currency
	Stock         decimal.Decimal
	IsActive      bool
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Sellable reports whether new stock may be taken from the product.
func (p Product) Sellable() (bool, string) {
	switch {
	case p.IsDeleted:
		return false, "deleted"
	case !p.IsActive:
		return false, "inactive"
	}
	return true, ""
}

// Patch is a partial product update. Nil fields are left untouched.
type Patch struct {
	Name          *string
	Price         *decimal.Decimal
	Currency      *Currency
	DiscountPrice *decimal.NullDecimal
	IsActive      *bool
	IsDeleted     *bool
}

func (p *Product) Apply(patch Patch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	if patch.DiscountPrice != nil {
		p.DiscountPrice = *patch.DiscountPrice
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.IsDeleted != nil {
		p.IsDeleted = *patch.IsDeleted
	}
}
