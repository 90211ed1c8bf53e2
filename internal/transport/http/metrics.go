package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fanout",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of ingest, operator and health requests.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"route", "method", "status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanout",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"route", "method", "status"})

	wsUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanout",
		Subsystem: "ws",
		Name:      "upgrade_requests_total",
		Help:      "WebSocket upgrade attempts by response status.",
	}, []string{"status"})
)

// MetricsMiddleware records request rate, errors and latency per route.
// WebSocket upgrades live for the whole connection, so they are only counted.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := strconv.Itoa(ww.Status())
		if isUpgrade(r) {
			wsUpgrades.WithLabelValues(status).Inc()
			return
		}
		route := routeLabel(r)
		httpDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(route, r.Method, status).Inc()
	})
}

// routeLabel keeps label cardinality bounded: unmatched paths share one label.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return "unmatched"
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
