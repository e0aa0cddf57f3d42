package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/ariefcatur/go-pos-orders/internal/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ItemReq struct {
	ProductID           string              `json:"productId" validate:"required"`
	Quantity            decimal.Decimal     `json:"quantity"`
	Price               decimal.NullDecimal `json:"price"`
	ManualDiscountValue decimal.Decimal     `json:"manualDiscountValue"`
	ManualDiscountType  string              `json:"manualDiscountType" validate:"omitempty,max=16"`
}

type DiscountReq struct {
	DiscountType  string          `json:"discountType" validate:"omitempty,max=16"`
	DiscountValue decimal.Decimal `json:"discountValue"`
}

type CreateOrderReq struct {
	Items         []ItemReq       `json:"items" validate:"required,min=1,dive"`
	PartnerID     string          `json:"partnerId" validate:"omitempty,max=64"`
	CustomerName  string          `json:"customerName" validate:"omitempty,max=200"`
	Type          string          `json:"type" validate:"omitempty,max=32"`
	PaymentMethod string          `json:"paymentMethod" validate:"omitempty,max=32"`
	ExchangeRate  decimal.Decimal `json:"exchangeRate"`
	DiscountReq
}

type UpdateOrderReq struct {
	Items        []ItemReq       `json:"items" validate:"required,min=1,dive"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	DiscountReq
}

type StatusReq struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled"`
}

type RefundLineReq struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type RefundReq struct {
	Items  []RefundLineReq `json:"items" validate:"required,min=1,dive"`
	Reason string          `json:"reason" validate:"omitempty,max=500"`
}

type ProductPatchReq struct {
	Name          *string              `json:"name" validate:"omitempty,min=1,max=200"`
	Price         *decimal.Decimal     `json:"price"`
	Currency      *string              `json:"currency" validate:"omitempty,oneof=UZS USD"`
	DiscountPrice *decimal.NullDecimal `json:"discountPrice"`
	IsActive      *bool                `json:"isActive"`
	IsDeleted     *bool                `json:"isDeleted"`
}

type RefundResp struct {
	RefundID string           `json:"refundId,omitempty"`
	Amount   decimal.Decimal  `json:"amount"`
	Order    orders.OrderView `json:"order"`
}

type RefundView struct {
	ID          string                `json:"id"`
	OrderID     string                `json:"orderId"`
	TotalAmount decimal.Decimal       `json:"totalAmount"`
	Reason      string                `json:"reason,omitempty"`
	RefundedBy  string                `json:"refundedBy"`
	Items       []orders.RefundedLine `json:"items"`
	CreatedAt   time.Time             `json:"createdAt"`
}

type ProductView struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Price         decimal.Decimal     `json:"price"`
	Currency      string              `json:"currency"`
	DiscountPrice decimal.NullDecimal `json:"discountPrice"`
	Stock         decimal.Decimal     `json:"stock"`
	IsActive      bool                `json:"isActive"`
	IsDeleted     bool                `json:"isDeleted"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// decode reads a JSON body and runs the struct's validate tags.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("body", "invalid json: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Invalid(fieldName(fe.Namespace()), "failed %q validation", fe.Tag())
		}
		return apperr.Invalid("body", "%v", err)
	}
	return nil
}

// fieldName turns "CreateOrderReq.Items[0].ProductID" into "Items[0].ProductID".
func fieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func (d DiscountReq) discount() (pricing.Discount, error) {
	return pricing.ParseDiscount(d.DiscountType, d.DiscountValue)
}

func toItems(in []ItemReq) []orders.ItemInput {
	out := make([]orders.ItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, orders.ItemInput{
			ProductID:           it.ProductID,
			Quantity:            it.Quantity,
			Price:               it.Price,
			ManualDiscountValue: it.ManualDiscountValue,
			ManualDiscountType:  it.ManualDiscountType,
		})
	}
	return out
}

func (r CreateOrderReq) input() (orders.CreateOrderInput, error) {
	d, err := r.discount()
	if err != nil {
		return orders.CreateOrderInput{}, err
	}
	return orders.CreateOrderInput{
		Items:         toItems(r.Items),
		PartnerID:     r.PartnerID,
		CustomerName:  r.CustomerName,
		Type:          r.Type,
		PaymentMethod: r.PaymentMethod,
		ExchangeRate:  r.ExchangeRate,
		Discount:      d,
	}, nil
}

func (r UpdateOrderReq) input() (orders.UpdateOrderInput, error) {
	d, err := r.discount()
	if err != nil {
		return orders.UpdateOrderInput{}, err
	}
	return orders.UpdateOrderInput{Items: toItems(r.Items), ExchangeRate: r.ExchangeRate, Discount: d}, nil
}

func (r RefundReq) input() orders.RefundInput {
	in := orders.RefundInput{Reason: r.Reason, Items: make([]orders.RefundLineInput, 0, len(r.Items))}
	for _, l := range r.Items {
		in.Items = append(in.Items, orders.RefundLineInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return in
}

func (r ProductPatchReq) patch() (catalog.Patch, error) {
	p := catalog.Patch{Name: r.Name, Price: r.Price, DiscountPrice: r.DiscountPrice, IsActive: r.IsActive, IsDeleted: r.IsDeleted}
	if r.Price != nil && !r.Price.IsPositive() {
		return p, apperr.Invalid("price", "must be positive")
	}
	if r.DiscountPrice != nil && r.DiscountPrice.Valid && r.DiscountPrice.Decimal.IsNegative() {
		return p, apperr.Invalid("discountPrice", "must not be negative")
	}
	if r.Currency != nil {
		c := catalog.Currency(*r.Currency)
		p.Currency = &c
	}
	return p, nil
}

func refundView(r orders.Refund) RefundView {
	return RefundView{
		ID:          r.ID,
		OrderID:     r.OrderID,
		TotalAmount: r.TotalAmount,
		Reason:      r.Reason,
		RefundedBy:  r.RefundedBy,
		Items:       r.Items,
		CreatedAt:   r.CreatedAt,
	}
}

func productView(p catalog.Product) ProductView {
	return ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Currency:      string(p.Currency),
		DiscountPrice: p.DiscountPrice,
		Stock:         p.Stock,
		IsActive:      p.IsActive,
		IsDeleted:     p.IsDeleted,
		UpdatedAt:     p.UpdatedAt,
	}
}

func views(list []orders.Order) []orders.OrderView {
	out := make([]orders.OrderView, 0, len(list))
	for i := range list {
		out = append(out, list[i].View())
	}
	return out
}

// listFilter parses status, from, to, limit and offset query parameters.
func listFilter(r *http.Request) (orders.ListFilter, error) {
	q := r.URL.Query()
	f := orders.ListFilter{Status: orders.Status(q.Get("status"))}
	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, apperr.Invalid("from", "%v", err)
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, apperr.Invalid("to", "%v", err)
	}
	if f.Limit, err = parseInt(q.Get("limit")); err != nil {
		return f, apperr.Invalid("limit", "%v", err)
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		return f, apperr.Invalid("offset", "%v", err)
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}
