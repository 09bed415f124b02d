package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation metrics. These describe the shape of the reconciled data
// rather than the health of the backend.

var (
	// ExtractScanTimeouts counts code scans aborted by the regex match timeout.
	ExtractScanTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reqtrace",
			Subsystem: "extract",
			Name:      "scan_timeouts_total",
			Help:      "Total number of requirement code scans aborted by the match timeout",
		},
	)

	// AlignedSteps observes the number of aligned steps per test case.
	AlignedSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reqtrace",
			Subsystem: "align",
			Name:      "steps_per_test_case",
			Help:      "Number of aligned steps per test case",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	// DiscrepanciesTotal counts validation discrepancies.
	// Labels:
	//   - direction: "mentioned_not_linked" or "linked_not_mentioned"
	DiscrepanciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqtrace",
			Subsystem: "validate",
			Name:      "discrepancies_total",
			Help:      "Total number of validation discrepancies by direction",
		},
		[]string{"direction"},
	)
)
