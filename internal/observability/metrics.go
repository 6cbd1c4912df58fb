// Package observability exposes application metrics over Prometheus.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Metrics holds the service's instruments on a private registry so tests
// can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	admissionDenials *prometheus.CounterVec
	smsOutcomes      *prometheus.CounterVec
	couponApplies    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgate_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		admissionDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_admission_denied_total",
				Help: "Requests denied at admission, by reason",
			},
			[]string{"reason"},
		),
		smsOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_sms_outcomes_total",
				Help: "Terminal SMS delivery outcomes, by status",
			},
			[]string{"status"},
		),
		couponApplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgate_coupon_applies_total",
				Help: "Coupon redemption attempts, by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.httpRequests,
		m.httpDuration,
		m.admissionDenials,
		m.smsOutcomes,
		m.couponApplies,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if strings.TrimSpace(path) == "" {
			path = "unknown"
		}

		m.httpRequests.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.httpDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordAdmissionDenied(reason string) {
	if m == nil {
		return
	}
	m.admissionDenials.WithLabelValues(strings.TrimSpace(reason)).Inc()
}

func (m *Metrics) RecordSMSOutcome(status string) {
	if m == nil {
		return
	}
	m.smsOutcomes.WithLabelValues(strings.TrimSpace(status)).Inc()
}

func (m *Metrics) RecordCouponApply(result string) {
	if m == nil {
		return
	}
	m.couponApplies.WithLabelValues(strings.TrimSpace(result)).Inc()
}

var Module = fx.Module("observability",
	fx.Provide(New),
)
