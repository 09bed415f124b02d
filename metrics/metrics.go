package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_upstream_requests_total",
			Help: "Total number of requests sent to the test-management backend",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_upstream_failures_total",
			Help: "Total number of upstream fetches that failed and were degraded",
		},
		[]string{"stage"},
	)

	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_upstream_breaker_trips_total",
			Help: "Total number of times the backend circuit breaker opened",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_cache_lookups_total",
			Help: "Total number of read cache lookups",
		},
		[]string{"result"},
	)

	ReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqtrace_report_duration_seconds",
			Help:    "Time taken to build a report",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	CoverageRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqtrace_coverage_rows",
			Help: "Number of coverage rows produced by the last report",
		},
	)

	ValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqtrace_validation_failures_total",
			Help: "Total number of test cases that failed bidirectional validation",
		},
	)

	TablesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqtrace_tables_rejected_total",
			Help: "Total number of external tables rejected during validation",
		},
		[]string{"reason"},
	)
)

// Failure stages
const (
	StageSuites       = "suites"
	StageTestPoints   = "test_points"
	StageWorkItems    = "work_items"
	StageSteps        = "steps"
	StageSharedSteps  = "shared_steps"
	StageRunResults   = "run_results"
	StageRequirements = "requirements"
	StageTables       = "tables"
)
