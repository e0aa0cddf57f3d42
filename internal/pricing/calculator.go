// Package pricing turns catalog prices into settlement-currency (UZS) order
// amounts. It has no side effects.
package pricing

import (
	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/shopspring/decimal"
)

// Settlement is the currency every order aggregate is stored in.
const Settlement = catalog.UZS

const moneyPlaces = 2

// Money rounds an amount to settlement precision.
func Money(d decimal.Decimal) decimal.Decimal { return d.Round(moneyPlaces) }

// Policy decides what happens to a fixed discount larger than the items total.
type Policy int

const (
	Reject Policy = iota
	Clamp
)

type Line struct {
	Product  catalog.Product
	Quantity decimal.Decimal
	// ManualPrice overrides the sold unit price, already in UZS.
	ManualPrice decimal.NullDecimal
}

type PricedLine struct {
	ProductID         string
	Quantity          decimal.Decimal
	OriginalUnitPrice decimal.Decimal
	SoldUnitPrice     decimal.Decimal
	LineOriginal      decimal.Decimal
	LineSold          decimal.Decimal
}

type Result struct {
	Lines          []PricedLine
	TotalAmount    decimal.Decimal // sum of catalog line prices
	ItemsTotal     decimal.Decimal // sum of sold line prices
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

type Calculator struct {
	Policy Policy
}

// ToSettlement converts a catalog amount into UZS.
func ToSettlement(amount decimal.Decimal, cur catalog.Currency, rate decimal.Decimal) (decimal.Decimal, error) {
	switch cur {
	case catalog.UZS, "":
		return amount, nil
	case catalog.USD:
		if !rate.IsPositive() {
			return decimal.Zero, apperr.Invalid("exchangeRate", "must be positive for USD products")
		}
		return amount.Mul(rate), nil
	}
	return decimal.Zero, apperr.Invalid("currency", "unsupported currency %q", cur)
}

func (c Calculator) priceLine(l Line, rate decimal.Decimal) (PricedLine, error) {
	if !l.Quantity.IsPositive() {
		return PricedLine{}, apperr.Invalid("quantity", "must be positive for product %s", l.Product.ID)
	}
	p := l.Product
	orig, err := ToSettlement(p.Price, p.Currency, rate)
	if err != nil {
		return PricedLine{}, err
	}
	var sold decimal.Decimal
	switch {
	case l.ManualPrice.Valid:
		if l.ManualPrice.Decimal.IsNegative() {
			return PricedLine{}, apperr.Invalid("price", "must not be negative for product %s", p.ID)
		}
		sold = l.ManualPrice.Decimal
	case p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsPositive():
		if sold, err = ToSettlement(p.DiscountPrice.Decimal, p.Currency, rate); err != nil {
			return PricedLine{}, err
		}
	default:
		sold = orig
	}
	orig, sold = Money(orig), Money(sold)
	return PricedLine{
		ProductID:         p.ID,
		Quantity:          l.Quantity,
		OriginalUnitPrice: orig,
		SoldUnitPrice:     sold,
		LineOriginal:      Money(orig.Mul(l.Quantity)),
		LineSold:          Money(sold.Mul(l.Quantity)),
	}, nil
}

// Price computes line and order amounts for lines under discount d.
func (c Calculator) Price(lines []Line, d Discount, rate decimal.Decimal) (Result, error) {
	res := Result{Lines: make([]PricedLine, 0, len(lines))}
	for _, l := range lines {
		pl, err := c.priceLine(l, rate)
		if err != nil {
			return Result{}, err
		}
		res.Lines = append(res.Lines, pl)
		res.TotalAmount = res.TotalAmount.Add(pl.LineOriginal)
		res.ItemsTotal = res.ItemsTotal.Add(pl.LineSold)
	}
	disc, final, err := c.ApplyDiscount(res.ItemsTotal, d)
	if err != nil {
		return Result{}, err
	}
	res.DiscountAmount, res.FinalAmount = disc, final
	return res, nil
}

// ApplyDiscount returns the discount amount and the net payable for an items
// total.
func (c Calculator) ApplyDiscount(itemsTotal decimal.Decimal, d Discount) (discount, final decimal.Decimal, err error) {
	discount = d.Amount(itemsTotal)
	if discount.GreaterThan(itemsTotal) {
		if c.Policy == Reject {
			return decimal.Zero, decimal.Zero, &apperr.DiscountExceedsTotalError{Discount: discount, Total: itemsTotal}
		}
		discount = itemsTotal
	}
	return discount, Net(itemsTotal, discount), nil
}

// Net is max(0, itemsTotal - discount).
func Net(itemsTotal, discount decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, itemsTotal.Sub(discount))
}
