package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Webhook deliveries by normalized kind (payment.completed, ignored, invalid)",
		},
		[]string{"kind"},
	)

	Matches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_matches_total",
			Help: "Matched orders by match reason",
		},
		[]string{"reason"},
	)

	DeliveredUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_delivered_units_total",
		Help: "Stock units handed to paid orders",
	})

	EmptyStock = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_empty_stock_total",
			Help: "Orders marked paid without delivery",
		},
		[]string{"reason"},
	)

	Duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_duplicates_total",
		Help: "Redelivered invoices skipped by dedup",
	})

	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_failures_total",
			Help: "Background reconciliation jobs that returned an error",
		},
		[]string{"scheduler"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)
)

func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request count and latency by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}
