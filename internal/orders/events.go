package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventNewOrder          = "new_order"
	EventOrderUpdated      = "order_updated"
	EventOrderStatusChange = "order_status_change"
	EventStockUpdate       = "stock_update"
	EventOrderPrinted      = "order_printed"
)

// Notification targets. Broadcast reaches every connected terminal.
const (
	TargetAdmin     = "admin"
	TargetBroadcast = "broadcast"
)

type StockAction string

const (
	StockAdd      StockAction = "add"
	StockSubtract StockAction = "subtract"
)

// ---- Event payloads ----

type NewOrderPayload struct {
	ID           string          `json:"id"`
	SellerID     string          `json:"sellerId"`
	CustomerName string          `json:"customerName"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type OrderUpdatedPayload struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"sellerId"`
	UpdatedBy   string          `json:"updatedBy"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type StatusChangePayload struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

type StockDelta struct {
	ID       string          `json:"id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type StockUpdatePayload struct {
	Action StockAction  `json:"action"`
	Items  []StockDelta `json:"items"`
}

type OrderPrintedPayload struct {
	Order OrderView `json:"order"`
}

// OrderView is the wire shape of an order aggregate.
type OrderView struct {
	ID             string          `json:"id"`
	Status         Status          `json:"status"`
	Currency       string          `json:"currency"`
	ExchangeRate   decimal.Decimal `json:"exchangeRate"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountType   string          `json:"discountType,omitempty"`
	SellerID       string          `json:"sellerId"`
	CashierID      string          `json:"cashierId,omitempty"`
	PartnerID      string          `json:"partnerId,omitempty"`
	CustomerName   string          `json:"customerName,omitempty"`
	Type           string          `json:"type,omitempty"`
	PaymentMethod  string          `json:"paymentMethod,omitempty"`
	IsPrinted      bool            `json:"isPrinted"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Items          []OrderItemView `json:"items"`
}

type OrderItemView struct {
	ID                  string          `json:"id"`
	ProductID           string          `json:"productId"`
	Quantity            decimal.Decimal `json:"quantity"`
	Price               decimal.Decimal `json:"price"`
	OriginalPrice       decimal.Decimal `json:"originalPrice"`
	TotalPrice          decimal.Decimal `json:"totalPrice"`
	ManualDiscountValue decimal.Decimal `json:"manualDiscountValue"`
	ManualDiscountType  string          `json:"manualDiscountType,omitempty"`
}

func (o *Order) View() OrderView {
	v := OrderView{
		ID:             o.ID,
		Status:         o.Status,
		Currency:       string(o.Currency),
		ExchangeRate:   o.ExchangeRate,
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.FinalAmount,
		DiscountValue:  o.DiscountValue,
		DiscountType:   string(o.DiscountType),
		SellerID:       o.SellerID,
		CashierID:      o.CashierID,
		PartnerID:      o.PartnerID,
		CustomerName:   o.CustomerName,
		Type:           o.Type,
		PaymentMethod:  o.PaymentMethod,
		IsPrinted:      o.IsPrinted,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Items:          make([]OrderItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, OrderItemView{
			ID:                  it.ID,
			ProductID:           it.ProductID,
			Quantity:            it.Quantity,
			Price:               it.Price,
			OriginalPrice:       it.OriginalPrice,
			TotalPrice:          it.TotalPrice,
			ManualDiscountValue: it.ManualDiscountValue,
			ManualDiscountType:  it.ManualDiscountType,
		})
	}
	return v
}
