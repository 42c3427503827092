package httpx

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}
)

type routerMetrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	labUploads     *prometheus.CounterVec
}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		m := routerMetrics{
			requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "healthmatters",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Count of processed HTTP requests",
			}, []string{"method", "route", "status"}),
			requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "healthmatters",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers",
				Buckets:   histogramBuckets,
			}, []string{"method", "route", "status"}),
			rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "healthmatters",
				Subsystem: "api",
				Name:      "rate_limit_hits_total",
				Help:      "Number of rate-limited responses",
			}, []string{"route", "key"}),
			labUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "healthmatters",
				Subsystem: "labs",
				Name:      "uploads_total",
				Help:      "Lab result uploads by outcome",
			}, []string{"outcome"}),
		}
		m.requestTotal = registerCounter(m.requestTotal)
		m.requestLatency = registerHistogram(m.requestLatency)
		m.rateLimitHits = registerCounter(m.rateLimitHits)
		m.labUploads = registerCounter(m.labUploads)
		r.metrics = &m
	})
}

// registerCounter returns the already registered collector when another router registered first.
func registerCounter(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogram(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return h
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.metrics.requestTotal.With(labels).Inc()
	r.metrics.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	if r.metrics == nil {
		return
	}
	r.metrics.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}

func (r *Router) recordLabUpload(outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.labUploads.With(prometheus.Labels{"outcome": outcome}).Inc()
}
