package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/memstore"
	"github.com/ariefcatur/go-pos-orders/internal/metrics"
	"github.com/ariefcatur/go-pos-orders/internal/notify"
	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/ariefcatur/go-pos-orders/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	srv   *httptest.Server
	store *memstore.Store
	mr    *miniredis.Miniredis
}

func setup(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	store.Put(catalog.Product{ID: "tea", Name: "Tea", Price: decimal.NewFromInt(10000), Currency: catalog.UZS,
		Stock: decimal.NewFromInt(10), IsActive: true})
	store.Put(catalog.Product{ID: "cup", Name: "Cup", Price: decimal.NewFromInt(10), Currency: catalog.USD,
		Stock: decimal.NewFromInt(5), IsActive: true})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "api")
	engine := orders.NewEngine(store, notify.Nop{}, nil)
	engine.Metrics = m

	r := NewRouter(nil, m, reg)
	(&OrdersHandler{Engine: engine, Cache: redisx.NewOrderCache(rdb, nil), Idem: redisx.NewIdempotency(rdb)}).Register(r)
	(&ProductsHandler{Catalog: store}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: store, mr: mr}
}

func (a *testAPI) do(t *testing.T, method, path, user, role, body string, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderUserRole, role)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeView(t *testing.T, b []byte) orders.OrderView {
	t.Helper()
	var v orders.OrderView
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func decodeErr(t *testing.T, b []byte) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(b, &e), string(b))
	return e
}

func TestCreateOrder_HTTP(t *testing.T) {
	api := setup(t)

	resp, body := api.do(t, http.MethodPost, "/orders", "s1", "seller",
		`{"items":[{"productId":"tea","quantity":2},{"productId":"cup","quantity":"1"}],"exchangeRate":"12000","discountType":"percent","discountValue":10}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	v := decodeView(t, body)
	assert.Equal(t, orders.StatusDraft, v.Status)
	assert.Equal(t, "UZS", v.Currency)
	assert.True(t, decimal.NewFromInt(140000).Equal(v.TotalAmount))
	assert.True(t, decimal.NewFromInt(14000).Equal(v.DiscountAmount))
	assert.True(t, decimal.NewFromInt(126000).Equal(v.FinalAmount))
	assert.True(t, decimal.NewFromInt(8).Equal(api.store.Stock("tea")))
}

func TestCreateOrder_Errors(t *testing.T) {
	api := setup(t)

	resp, _ := api.do(t, http.MethodPost, "/orders", "", "", `{"items":[{"productId":"tea","quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decodeErr(t, body).Code)

	resp, body = api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":11}]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	e := decodeErr(t, body)
	assert.Equal(t, "insufficient_stock", e.Code)
	assert.Equal(t, "tea", e.ProductID)
	require.NotNil(t, e.Available)
	assert.True(t, decimal.NewFromInt(10).Equal(*e.Available))

	resp, body = api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"cup","quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "exchangeRate", decodeErr(t, body).Field)

	resp, body = api.do(t, http.MethodPost, "/orders", "s1", "seller",
		`{"items":[{"productId":"tea","quantity":1}],"discountType":"fixed","discountValue":50000}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "discount_exceeds_total", decodeErr(t, body).Code)

	resp, _ = api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":1}],"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	api := setup(t)
	const payload = `{"items":[{"productId":"tea","quantity":3}]}`

	resp, body := api.do(t, http.MethodPost, "/orders", "s1", "seller", payload, HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	first := decodeView(t, body)

	resp, body = api.do(t, http.MethodPost, "/orders", "s1", "seller", payload, HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replay"))
	assert.Equal(t, first.ID, decodeView(t, body).ID)
	assert.True(t, decimal.NewFromInt(7).Equal(api.store.Stock("tea")))

	// failed create frees the key
	resp, _ = api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":99}]}`, HeaderIdempotencyKey, "xyz")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, api.mr.Exists("idem:order:create:s1:xyz"))

	// the same key from another seller is a fresh request
	resp, body = api.do(t, http.MethodPost, "/orders", "s2", "seller", payload, HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Empty(t, resp.Header.Get("Idempotent-Replay"))
	other := decodeView(t, body)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, "s2", other.SellerID)
	assert.True(t, decimal.NewFromInt(4).Equal(api.store.Stock("tea")))
}

func TestOrderLifecycle_HTTP(t *testing.T) {
	api := setup(t)

	_, body := api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":4}]}`)
	id := decodeView(t, body).ID

	resp, body := api.do(t, http.MethodPut, "/orders/"+id, "s2", "seller", `{"items":[{"productId":"tea","quantity":1}]}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	resp, body = api.do(t, http.MethodGet, "/orders/"+id, "s1", "seller", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, api.mr.Exists("order:"+id))

	resp, body = api.do(t, http.MethodPut, "/orders/"+id, "s1", "seller", `{"items":[{"productId":"tea","quantity":5}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.False(t, api.mr.Exists("order:"+id))
	assert.True(t, decimal.NewFromInt(5).Equal(api.store.Stock("tea")))

	resp, _ = api.do(t, http.MethodPatch, "/orders/"+id+"/status", "s1", "seller", `{"status":"completed"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = api.do(t, http.MethodPatch, "/orders/"+id+"/status", "c1", "cashier", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "c1", decodeView(t, body).CashierID)

	resp, body = api.do(t, http.MethodPost, "/orders/"+id+"/print", "c1", "cashier", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decodeView(t, body).IsPrinted)

	resp, body = api.do(t, http.MethodPost, "/orders/"+id+"/refunds", "a1", "admin", `{"items":[{"productId":"tea","quantity":9}]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "over_refund", decodeErr(t, body).Code)

	resp, body = api.do(t, http.MethodPost, "/orders/"+id+"/refunds", "a1", "admin", `{"items":[{"productId":"tea","quantity":2}],"reason":"broken"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rr RefundResp
	require.NoError(t, json.Unmarshal(body, &rr))
	assert.NotEmpty(t, rr.RefundID)
	assert.True(t, decimal.NewFromInt(20000).Equal(rr.Amount))
	assert.Equal(t, orders.StatusPartiallyRefunded, rr.Order.Status)
	assert.True(t, decimal.NewFromInt(30000).Equal(rr.Order.FinalAmount))

	resp, body = api.do(t, http.MethodGet, "/orders/"+id+"/refunds", "a1", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ledger []RefundView
	require.NoError(t, json.Unmarshal(body, &ledger))
	require.Len(t, ledger, 1)
	assert.Equal(t, "broken", ledger[0].Reason)
	assert.Contains(t, string(body), `"productId":"tea"`)
	assert.NotContains(t, string(body), "product_id")

	resp, _ = api.do(t, http.MethodPatch, "/orders/"+id+"/status", "a1", "admin", `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/orders/missing", "a1", "admin", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListOrders_HTTP(t *testing.T) {
	api := setup(t)
	api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":1}]}`)
	api.do(t, http.MethodPost, "/orders", "s2", "seller", `{"items":[{"productId":"tea","quantity":1}]}`)

	resp, body := api.do(t, http.MethodGet, "/orders", "a1", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []orders.OrderView
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 2)

	resp, body = api.do(t, http.MethodGet, "/orders", "s1", "seller", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []orders.OrderView
	require.NoError(t, json.Unmarshal(body, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "s1", mine[0].SellerID)

	resp, _ = api.do(t, http.MethodGet, "/orders/seller/s2", "s1", "seller", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/orders?status=lost", "a1", "admin", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = api.do(t, http.MethodGet, "/orders?limit=ten", "a1", "admin", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProducts_HTTP(t *testing.T) {
	api := setup(t)

	resp, body := api.do(t, http.MethodGet, "/products", "s1", "seller", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ps []ProductView
	require.NoError(t, json.Unmarshal(body, &ps))
	assert.Len(t, ps, 2)

	resp, _ = api.do(t, http.MethodPatch, "/products/tea", "s1", "seller", `{"price":1}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPatch, "/products/tea", "a1", "admin", `{"price":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodPatch, "/products/tea", "a1", "admin", `{"price":"12000","isActive":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var p ProductView
	require.NoError(t, json.Unmarshal(body, &p))
	assert.True(t, decimal.NewFromInt(12000).Equal(p.Price))
	assert.False(t, p.IsActive)
	assert.True(t, decimal.NewFromInt(10).Equal(p.Stock))

	resp, body = api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_product", decodeErr(t, body).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	api := setup(t)
	resp, body := api.do(t, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	api.do(t, http.MethodPost, "/orders", "s1", "seller", `{"items":[{"productId":"tea","quantity":1}]}`)
	resp, body = api.do(t, http.MethodGet, "/metrics", "", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pos_api_order_operations_total")
	assert.Contains(t, string(body), `route="/orders"`)
}
