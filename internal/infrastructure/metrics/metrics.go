package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_provider_requests_total",
			Help: "Total number of upstream rate provider calls per endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	ProviderRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_provider_request_duration_seconds",
			Help:    "Upstream rate provider call duration in seconds per endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	StoreLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_store_lookups_total",
			Help: "Total number of store lookups per kind (single, range) and result (hit, miss, error)",
		},
		[]string{"kind", "result"},
	)

	StoredRatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_stored_rates_total",
			Help: "Total number of rates handed to the store per kind (single, range)",
		},
		[]string{"kind"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds per route and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)

	JobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exchange_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

// ObserveProviderCall records one upstream call
func ObserveProviderCall(endpoint string, startedAt time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	ProviderRequestDurationSeconds.WithLabelValues(endpoint).Observe(time.Since(startedAt).Seconds())
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(route string, status int, startedAt time.Time) {
	HTTPRequestDurationSeconds.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(startedAt).Seconds())
}

// UpdateJobMetrics records the completion of a scheduled job run
func UpdateJobMetrics(job string, err error) {
	JobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		JobFailuresTotal.WithLabelValues(job).Inc()
	}
}
