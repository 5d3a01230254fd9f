package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	formReviewsSubmitted *prometheus.CounterVec
	formVersionsUploaded prometheus.Counter
	formWriteConflicts   *prometheus.CounterVec
	formUploadsRejected  *prometheus.CounterVec
	projectGateChecks    *prometheus.CounterVec
	formSubscriptions    prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		formReviewsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "form_reviews_submitted_total",
			Help: "Reviews accepted against a form version, by verdict.",
		}, []string{"status"})

		formVersionsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "form_versions_uploaded_total",
			Help: "Form versions appended, including the initial upload.",
		})

		formWriteConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "form_write_conflicts_total",
			Help: "Form read-modify-write cycles invalidated by a concurrent writer.",
		}, []string{"operation"})

		formUploadsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "form_uploads_rejected_total",
			Help: "Form uploads rejected before reaching the blob store.",
		}, []string{"reason"})

		projectGateChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "project_gate_checks_total",
			Help: "Project resolution checks, by outcome.",
		}, []string{"result"})

		formSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "form_subscriptions_active",
			Help: "Live form query subscriptions currently open.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			formReviewsSubmitted, formVersionsUploaded, formWriteConflicts,
			formUploadsRejected, projectGateChecks, formSubscriptions,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

func FormReviewsSubmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return formReviewsSubmitted
}

func FormVersionsUploaded() prometheus.Counter {
	RegisterMetrics()
	return formVersionsUploaded
}

func FormWriteConflicts() *prometheus.CounterVec {
	RegisterMetrics()
	return formWriteConflicts
}

func FormUploadsRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return formUploadsRejected
}

func ProjectGateChecks() *prometheus.CounterVec {
	RegisterMetrics()
	return projectGateChecks
}

func FormSubscriptionsActive() prometheus.Gauge {
	RegisterMetrics()
	return formSubscriptions
}
