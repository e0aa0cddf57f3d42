package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Ops             *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer, service string) *Metrics {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: service,
			Name:      "order_operations_total",
			Help:      "Order engine operations by outcome.",
		}, []string{"op", "outcome"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: service,
			Name:      "publish_failures_total",
			Help:      "Notifications that could not be delivered.",
		}, []string{"event"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pos",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(m.Ops, m.PublishFailures, m.Requests, m.LatencyMS)
	return m
}

// Outcome buckets an engine error into a low-cardinality label.
func Outcome(err error) string {
	var (
		stock    *apperr.InsufficientStockError
		conflict *apperr.ConflictError
		timeout  *apperr.TimeoutError
		valid    *apperr.ValidationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &valid):
		return "invalid"
	}
	return "error"
}

func (m *Metrics) ObserveOp(op string, err error) {
	if m == nil {
		return
	}
	m.Ops.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) PublishFailed(event string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveRequest(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(took.Milliseconds()))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
