// Package middleware contains the HTTP middleware chain
package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shrty_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shrty_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shrty_http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shrty_redirects_total",
			Help: "Short link redirects by outcome",
		},
		[]string{"outcome"},
	)
)

// Metrics records request counts and latency per route
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // Use route template to avoid high cardinality
		}
		status := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(c.Method(), route, status).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordRedirect counts a redirect outcome, "hit" or "miss"
func RecordRedirect(outcome string) {
	redirectsTotal.WithLabelValues(outcome).Inc()
}
