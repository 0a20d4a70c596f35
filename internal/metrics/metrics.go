// Package metrics exposes Prometheus collectors for the loader.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	fetchTotal                 *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	deliveryTotal              *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govcontracts_fetch_total",
				Help: "Keyword queries issued, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govcontracts_records_total",
				Help: "Records seen at each pipeline stage.",
			},
			[]string{"stage"},
		)

		deliveryTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govcontracts_delivery_total",
				Help: "Delivery attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "govcontracts_run_duration_seconds",
				Help:    "Wall time of a complete loader run.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "govcontracts_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a search request token, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one keyword query.
func ObserveFetch(outcome string) {
	Init()
	fetchTotal.WithLabelValues(outcome).Inc()
}

// AddRecords adds n to the record counter for stage.
func AddRecords(stage string, n int) {
	Init()
	if n <= 0 {
		return
	}
	recordsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveDelivery counts one delivery outcome.
func ObserveDelivery(outcome string) {
	Init()
	deliveryTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records the duration of a run.
func ObserveRun(d time.Duration) {
	Init()
	runDurationSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records how long a request waited for its token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Push sends the default registry to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		return fmt.Errorf("metrics.job_name is required when pushing")
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
