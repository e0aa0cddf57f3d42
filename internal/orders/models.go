package orders

import (
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/pricing"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleSeller  Role = "seller"
	RoleCashier Role = "cashier"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleSeller, RoleCashier:
		return true
	}
	return false
}

// Actor is the authenticated staff member performing an operation.
type Actor struct {
	UserID string
	Role   Role
}

type Order struct {
	ID             string
	Status         Status
	Currency       catalog.Currency
	ExchangeRate   decimal.Decimal
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	DiscountValue  decimal.Decimal
	DiscountType   pricing.DiscountKind
	SellerID       string
	CashierID      string
	PartnerID      string
	CustomerName   string
	Type           string
	PaymentMethod  string
	IsPrinted      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Items          []OrderItem
}

func (o *Order) Discount() pricing.Discount {
	return pricing.Discount{Kind: o.DiscountType, Value: o.DiscountValue}
}

// ItemsTotal is the sum of the items' sold line prices.
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}

func (o *Order) item(productID string) (int, bool) {
	for i, it := range o.Items {
		if it.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

type OrderItem struct {
	ID                  string
	OrderID             string
	ProductID           string
	Quantity            decimal.Decimal
	Price               decimal.Decimal // sold unit price, UZS
	OriginalPrice       decimal.Decimal // catalog unit price in UZS at sale time
	TotalPrice          decimal.Decimal
	ManualDiscountValue decimal.Decimal
	ManualDiscountType  string
}

type Refund struct {
	ID          string
	OrderID     string
	TotalAmount decimal.Decimal
	Reason      string
	RefundedBy  string
	Items       []RefundedLine
	CreatedAt   time.Time
}

type RefundedLine struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
}

type ItemInput struct {
	ProductID string
	Quantity  decimal.Decimal
	// Price is an operator-set unit price in UZS; invalid means catalog price.
	Price               decimal.NullDecimal
	ManualDiscountValue decimal.Decimal
	ManualDiscountType  string
}

type CreateOrderInput struct {
	Items         []ItemInput
	PartnerID     string
	CustomerName  string
	Type          string
	PaymentMethod string
	ExchangeRate  decimal.Decimal
	Discount      pricing.Discount
}

type UpdateOrderInput struct {
	Items        []ItemInput
	ExchangeRate decimal.Decimal
	Discount     pricing.Discount
}

type RefundLineInput struct {
	ProductID string
	Quantity  decimal.Decimal
}

type RefundInput struct {
	Items  []RefundLineInput
	Reason string
}

type RefundResult struct {
	RefundID string
	Amount   decimal.Decimal
	Order    *Order
}

type ListFilter struct {
	Status   Status
	SellerID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}
