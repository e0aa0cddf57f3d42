package pricing

import (
	"testing"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func product(id, price string, cur catalog.Currency) catalog.Product {
	return catalog.Product{ID: id, Name: id, Price: d(price), Currency: cur, Stock: d("100"), IsActive: true}
}

func TestPrice_UZSNoDiscount(t *testing.T) {
	res, err := Calculator{}.Price([]Line{
		{Product: product("p1", "10000", catalog.UZS), Quantity: d("5")},
	}, NoDiscount(), decimal.Zero)

	require.NoError(t, err)
	assert.True(t, d("50000").Equal(res.TotalAmount))
	assert.True(t, d("50000").Equal(res.ItemsTotal))
	assert.True(t, d("50000").Equal(res.FinalAmount))
	assert.True(t, res.DiscountAmount.IsZero())
}

func TestPrice_USDConvertedWithRate(t *testing.T) {
	res, err := Calculator{}.Price([]Line{
		{Product: product("p2", "10", catalog.USD), Quantity: d("2")},
	}, NoDiscount(), d("12000"))

	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.True(t, d("120000").Equal(res.Lines[0].OriginalUnitPrice))
	assert.True(t, d("120000").Equal(res.Lines[0].SoldUnitPrice))
	assert.True(t, d("240000").Equal(res.Lines[0].LineSold))
	assert.True(t, d("240000").Equal(res.TotalAmount))
}

func TestPrice_USDWithoutRate(t *testing.T) {
	_, err := Calculator{}.Price([]Line{
		{Product: product("p2", "10", catalog.USD), Quantity: d("1")},
	}, NoDiscount(), decimal.Zero)

	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPrice_PercentDiscount(t *testing.T) {
	res, err := Calculator{}.Price([]Line{
		{Product: product("p1", "25000", catalog.UZS), Quantity: d("4")},
	}, Percent(d("10")), decimal.Zero)

	require.NoError(t, err)
	assert.True(t, d("100000").Equal(res.ItemsTotal))
	assert.True(t, d("10000").Equal(res.DiscountAmount))
	assert.True(t, d("90000").Equal(res.FinalAmount))
}

func TestPrice_PromoAndManualPrices(t *testing.T) {
	promo := product("promo", "10", catalog.USD)
	promo.DiscountPrice = decimal.NewNullDecimal(d("8"))
	manual := product("manual", "5000", catalog.UZS)

	res, err := Calculator{}.Price([]Line{
		{Product: promo, Quantity: d("1")},
		{Product: manual, Quantity: d("2"), ManualPrice: decimal.NewNullDecimal(d("4500"))},
	}, NoDiscount(), d("12000"))

	require.NoError(t, err)
	assert.True(t, d("96000").Equal(res.Lines[0].SoldUnitPrice))
	assert.True(t, d("120000").Equal(res.Lines[0].OriginalUnitPrice))
	assert.True(t, d("9000").Equal(res.Lines[1].LineSold))
	// totalAmount is pre-discount catalog value, itemsTotal what was actually charged
	assert.True(t, d("130000").Equal(res.TotalAmount))
	assert.True(t, d("105000").Equal(res.ItemsTotal))
}

func TestApplyDiscount_FixedExceedsTotal(t *testing.T) {
	_, _, err := Calculator{Policy: Reject}.ApplyDiscount(d("1000"), Fixed(d("1500")))
	var exceeds *apperr.DiscountExceedsTotalError
	require.ErrorAs(t, err, &exceeds)
	assert.True(t, d("1000").Equal(exceeds.Total))

	disc, final, err := Calculator{Policy: Clamp}.ApplyDiscount(d("1000"), Fixed(d("1500")))
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(disc))
	assert.True(t, final.IsZero())
}

func TestPrice_RejectsNonPositiveQuantity(t *testing.T) {
	_, err := Calculator{}.Price([]Line{
		{Product: product("p1", "100", catalog.UZS), Quantity: decimal.Zero},
	}, NoDiscount(), decimal.Zero)
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseDiscount(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		value   string
		want    Discount
		wantErr bool
	}{
		{name: "none", kind: "", value: "0", want: NoDiscount()},
		{name: "percent", kind: "percent", value: "15", want: Percent(d("15"))},
		{name: "fixed upper case", kind: "FIXED", value: "5000", want: Fixed(d("5000"))},
		{name: "percent over 100", kind: "percent", value: "101", wantErr: true},
		{name: "negative", kind: "fixed", value: "-1", wantErr: true},
		{name: "value without type", kind: "", value: "10", wantErr: true},
		{name: "unknown type", kind: "coupon", value: "10", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDiscount(tt.kind, d(tt.value))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.True(t, tt.want.Value.Equal(got.Value))
		})
	}
}
