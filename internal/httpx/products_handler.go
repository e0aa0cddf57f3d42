package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Catalog is the product surface the API reads and administers.
type Catalog interface {
	List(ctx context.Context) ([]catalog.Product, error)
	FindByID(ctx context.Context, id string) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) error
}

type ProductsHandler struct {
	Catalog Catalog
	Log     *zap.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)
		r.Get("/products", h.listProducts)
		r.Patch("/products/{id}", h.patchProduct)
	})
}

func (h *ProductsHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, productView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// patchProduct changes price, discount price or flags. Stock only moves
// through orders.
func (h *ProductsHandler) patchProduct(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	if a.Role != orders.RoleAdmin && a.Role != orders.RoleOwner {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "only admins and owners may edit products", Code: "forbidden"})
		return
	}
	var req ProductPatchReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, h.log(), err)
		return
	}

	ctx := r.Context()
	p, err := h.Catalog.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	p.Apply(patch)
	p.UpdatedAt = time.Now().UTC()
	if err := h.Catalog.UpdateProduct(ctx, *p); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.log().Info("product updated", zap.String("product_id", p.ID), zap.String("actor", a.UserID))
	writeJSON(w, http.StatusOK, productView(*p))
}
