// Package metrics holds the prometheus collectors for the HTTP surface,
// the outbound bridges and their circuit breakers.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atividades_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atividades_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// BridgeRequestsTotal counts calls to the auth server and object storage.
	// outcome: success, rejected, unavailable, invalid
	BridgeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atividades_bridge_requests_total",
			Help: "Outbound bridge calls by bridge, operation and outcome",
		},
		[]string{"bridge", "operation", "outcome"},
	)

	BridgeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atividades_bridge_request_duration_seconds",
			Help:    "Outbound bridge call latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"bridge", "operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atividades_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atividades_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// GateDecisions counts request gate verdicts.
	// decision: public, allowed, rejected, redirected, fail_open
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atividades_gate_decisions_total",
			Help: "Request gate decisions",
		},
		[]string{"decision"},
	)

	AuditEntriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atividades_audit_entries_dropped_total",
			Help: "Audit entries dropped because the queue was full",
		},
	)
)

func ObserveBridge(bridge, operation, outcome string, started time.Time) {
	BridgeRequestsTotal.WithLabelValues(bridge, operation, outcome).Inc()
	BridgeRequestDuration.WithLabelValues(bridge, operation).Observe(time.Since(started).Seconds())
}

// Middleware records request count and latency by route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
