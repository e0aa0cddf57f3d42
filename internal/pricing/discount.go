package pricing

import (
	"strings"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountNone    DiscountKind = ""
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Discount is an order-level discount recipe. Build it with ParseDiscount;
// the zero value means no discount.
type Discount struct {
	Kind  DiscountKind
	Value decimal.Decimal
}

func NoDiscount() Discount { return Discount{} }

func Percent(v decimal.Decimal) Discount { return Discount{Kind: DiscountPercent, Value: v} }

func Fixed(v decimal.Decimal) Discount { return Discount{Kind: DiscountFixed, Value: v} }

// ParseDiscount validates a loosely typed discount payload. An empty kind
// with a zero value is no discount.
func ParseDiscount(kind string, value decimal.Decimal) (Discount, error) {
	k := DiscountKind(strings.ToLower(strings.TrimSpace(kind)))
	if value.IsNegative() {
		return Discount{}, apperr.Invalid("discountValue", "must not be negative")
	}
	switch k {
	case DiscountNone:
		if !value.IsZero() {
			return Discount{}, apperr.Invalid("discountType", "required when discountValue is set")
		}
		return NoDiscount(), nil
	case DiscountPercent:
		if value.GreaterThan(hundred) {
			return Discount{}, apperr.Invalid("discountValue", "percent must be between 0 and 100")
		}
		return Percent(value), nil
	case DiscountFixed:
		return Fixed(value), nil
	}
	return Discount{}, apperr.Invalid("discountType", "unknown discount type %q", kind)
}

func (d Discount) IsZero() bool { return d.Kind == DiscountNone || d.Value.IsZero() }

// Amount is the nominal discount taken off itemsTotal, before any policy.
func (d Discount) Amount(itemsTotal decimal.Decimal) decimal.Decimal {
	switch d.Kind {
	case DiscountPercent:
		return Money(itemsTotal.Mul(d.Value).Div(hundred))
	case DiscountFixed:
		return Money(d.Value)
	}
	return decimal.Zero
}
