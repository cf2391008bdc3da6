// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "unieats"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions        *prometheus.CounterVec
	feeComputations    *prometheus.CounterVec
	rateFallbacks      prometheus.Counter
	sideEffectFailures *prometheus.CounterVec
	revenueRepairs     *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by source status, target status and result.",
		}, []string{"from", "to", "result"}),
		feeComputations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_computations_total",
			Help:      "Fee computations by result.",
		}, []string{"result"}),
		rateFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_source_fallbacks_total",
			Help:      "Times the configured default rates were used because the rate source failed.",
		}),
		sideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Failed best-effort side effects after a status transition.",
		}, []string{"effect"}),
		revenueRepairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_repairs_total",
			Help:      "Orders processed by the revenue repair path by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) ObserveTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
}

func (m *Metrics) ObserveFeeComputation(result string) {
	if m == nil {
		return
	}
	m.feeComputations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRateFallback() {
	if m == nil {
		return
	}
	m.rateFallbacks.Inc()
}

func (m *Metrics) ObserveSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(effect).Inc()
}

func (m *Metrics) ObserveRevenueRepair(result string) {
	if m == nil {
		return
	}
	m.revenueRepairs.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
