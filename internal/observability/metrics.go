// Package observability holds the Prometheus registry and the domain
// counters shared across modules.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	roastsTotal      *prometheus.CounterVec
	productionsTotal *prometheus.CounterVec
	adjustmentsTotal *prometheus.CounterVec
	slotsTotal       *prometheus.CounterVec
	lowStockProducts prometheus.Gauge
}

// NewMetrics initialises the registry, the HTTP metrics and the domain
// counters.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roastledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roastledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	roasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roastledger_roasts_total",
		Help: "Recorded roasts, split by whether they merged into an existing batch.",
	}, []string{"merged"})
	productions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roastledger_production_runs_total",
		Help: "Production runs by kind.",
	}, []string{"kind"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roastledger_adjustments_total",
		Help: "Manual stock adjustments by type.",
	}, []string{"type"})
	slots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roastledger_order_slots_total",
		Help: "Order slot assignments and releases.",
	}, []string{"action"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roastledger_low_stock_products",
		Help: "Products currently below the low stock threshold.",
	})
	registry.MustRegister(requests, duration, roasts, productions, adjustments, slots, lowStock)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		roastsTotal:      roasts,
		productionsTotal: productions,
		adjustmentsTotal: adjustments,
		slotsTotal:       slots,
		lowStockProducts: lowStock,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records HTTP metrics for every request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RoastRecorded implements the ledger metrics port.
func (m *Metrics) RoastRecorded(merged bool) {
	if m == nil {
		return
	}
	m.roastsTotal.WithLabelValues(strconv.FormatBool(merged)).Inc()
}

// AdjustmentRecorded implements the ledger metrics port.
func (m *Metrics) AdjustmentRecorded(kind string) {
	if m == nil {
		return
	}
	m.adjustmentsTotal.WithLabelValues(kind).Inc()
}

// ProductionRecorded implements the production metrics port.
func (m *Metrics) ProductionRecorded(kind string) {
	if m == nil {
		return
	}
	m.productionsTotal.WithLabelValues(kind).Inc()
}

// SlotAssigned implements the orders metrics port.
func (m *Metrics) SlotAssigned() {
	if m == nil {
		return
	}
	m.slotsTotal.WithLabelValues("assign").Inc()
}

// SlotReleased implements the orders metrics port.
func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.slotsTotal.WithLabelValues("release").Inc()
}

// SetLowStockProducts updates the low stock gauge from the periodic scan.
func (m *Metrics) SetLowStockProducts(n int) {
	if m == nil {
		return
	}
	m.lowStockProducts.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
