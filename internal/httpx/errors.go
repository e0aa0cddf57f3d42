package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	Field     string           `json:"field,omitempty"`
	ProductID string           `json:"productId,omitempty"`
	Requested *decimal.Decimal `json:"requested,omitempty"`
	Available *decimal.Decimal `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		valid     *apperr.ValidationError
		stock     *apperr.InsufficientStockError
		product   *apperr.InvalidProductError
		forbidden *apperr.ForbiddenError
		state     *apperr.InvalidStateError
		over      *apperr.OverRefundError
		discount  *apperr.DiscountExceedsTotalError
		notFound  *apperr.NotFoundError
		conflict  *apperr.ConflictError
		timeout   *apperr.TimeoutError
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &valid):
		status, body.Code, body.Field = http.StatusBadRequest, "validation", valid.Field
	case errors.As(err, &discount):
		status, body.Code = http.StatusBadRequest, "discount_exceeds_total"
	case errors.As(err, &product):
		status, body.Code, body.ProductID = http.StatusBadRequest, "invalid_product", product.ProductID
	case errors.As(err, &forbidden):
		status, body.Code = http.StatusForbidden, "forbidden"
	case errors.As(err, &notFound):
		status, body.Code = http.StatusNotFound, "not_found"
	case errors.As(err, &state):
		status, body.Code = http.StatusConflict, "invalid_state"
	case errors.As(err, &over):
		status, body.Code, body.ProductID = http.StatusConflict, "over_refund", over.ProductID
		body.Requested, body.Available = &over.Requested, &over.Remaining
	case errors.As(err, &stock):
		status, body.Code, body.ProductID = http.StatusConflict, "insufficient_stock", stock.ProductID
		body.Requested, body.Available = &stock.Requested, &stock.Available
	case errors.As(err, &conflict), errors.As(err, &timeout):
		status, body.Code = http.StatusServiceUnavailable, "retry"
		w.Header().Set("Retry-After", "1")
	default:
		log.Error("request failed", zap.Error(err))
		body = errorBody{Error: "internal error", Code: "internal"}
	}
	writeJSON(w, status, body)
}
