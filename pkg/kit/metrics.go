package kit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	labelMethod = "method"
	labelRoute  = "route"
	labelStatus = "status"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewMetrics registers the HTTP collectors for service on reg.
func NewMetrics(reg prometheus.Registerer, service string) *Metrics {
	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "bookstore",
				Name:        "http_requests_total",
				Help:        "Total HTTP requests",
				ConstLabels: labels,
			},
			[]string{labelMethod, labelRoute, labelStatus},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "bookstore",
				Name:        "http_request_duration_seconds",
				Help:        "HTTP latency",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{labelMethod, labelRoute},
		),
	}

	reg.MustRegister(m.Requests, m.Latency)
	return m
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := ChiRoutePatternOrPath(r)
		m.Latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// MountMetrics instruments r and, when enabled, exposes /metrics behind
// MetricsAuth. A nil registry disables both.
func MountMetrics(r chi.Router, reg *prometheus.Registry, service string, enabled bool, token string) {
	if reg == nil {
		return
	}

	r.Use(NewMetrics(reg, service).Middleware)
	if !enabled {
		return
	}

	r.With(MetricsAuth(token)).
		Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
}
