package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/ariefcatur/go-pos-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// OrdersHandler exposes the engine. Cache and Idem are optional.
type OrdersHandler struct {
	Engine *orders.Engine
	Cache  *redisx.OrderCache
	Idem   *redisx.Idempotency
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/seller/{sellerId}", h.listBySeller)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}", h.updateOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Post("/orders/{id}/print", h.markPrinted)
		r.Post("/orders/{id}/refunds", h.refund)
		r.Get("/orders/{id}/refunds", h.listRefunds)
	})
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *OrdersHandler) invalidate(ctx context.Context, id string) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, id)
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	ctx := r.Context()
	actor := actorFrom(ctx)

	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" && h.Idem != nil {
		existing, claimed, err := h.Idem.Claim(ctx, actor.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrInProgress):
			writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "in_progress"})
			return
		case err != nil:
			// Redis is a fast path only; create without the guard
			h.log().Warn("idempotency claim failed", zap.String("key", key), zap.Error(err))
			key = ""
		case !claimed:
			o, err := h.Engine.GetByID(ctx, existing)
			if err != nil {
				writeError(w, h.log(), err)
				return
			}
			w.Header().Set("Idempotent-Replay", "true")
			writeJSON(w, http.StatusOK, o.View())
			return
		}
	} else {
		key = ""
	}

	o, err := h.Engine.CreateOrder(ctx, actor, in)
	if err != nil {
		if key != "" {
			_ = h.Idem.Release(context.WithoutCancel(ctx), actor.UserID, key)
		}
		writeError(w, h.log(), err)
		return
	}
	if key != "" {
		if err := h.Idem.Complete(context.WithoutCancel(ctx), actor.UserID, key, o.ID); err != nil {
			h.log().Warn("idempotency complete failed", zap.String("key", key), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, o.View())
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	id := chi.URLParam(r, "id")
	o, err := h.Engine.UpdateOrder(r.Context(), actorFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	id := chi.URLParam(r, "id")
	o, err := h.Engine.UpdateStatus(r.Context(), actorFrom(r.Context()), id, orders.Status(req.Status))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) markPrinted(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Engine.MarkAsPrinted(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req RefundReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Engine.Refund(r.Context(), actorFrom(r.Context()), id, req.input())
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, RefundResp{RefundID: res.RefundID, Amount: res.Amount, Order: res.Order.View()})
}

func (h *OrdersHandler) listRefunds(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.GetRefunds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]RefundView, 0, len(list))
	for _, ref := range list {
		out = append(out, refundView(ref))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		o   *orders.Order
		err error
	)
	if h.Cache != nil {
		o, err = h.Cache.Get(r.Context(), id, h.Engine.GetByID)
	} else {
		o, err = h.Engine.GetByID(r.Context(), id)
	}
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	a := actorFrom(r.Context())
	if a.Role == orders.RoleSeller && o.SellerID != a.UserID {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "sellers may only read their own orders", Code: "forbidden"})
		return
	}
	writeJSON(w, http.StatusOK, o.View())
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	a := actorFrom(r.Context())
	var list []orders.Order
	if sellerID := r.URL.Query().Get("sellerId"); sellerID != "" || a.Role == orders.RoleSeller {
		if sellerID == "" {
			sellerID = a.UserID
		}
		list, err = h.Engine.GetBySellerID(r.Context(), a, sellerID, f)
	} else {
		list, err = h.Engine.GetAll(r.Context(), f)
	}
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, views(list))
}

func (h *OrdersHandler) listBySeller(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	list, err := h.Engine.GetBySellerID(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "sellerId"), f)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, views(list))
}
