package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchRunsTotal tracks finished batch runs by terminal status
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastmission_batch_runs_total",
			Help: "Total number of batch runs by terminal status",
		},
		[]string{"status"},
	)

	// BatchAttemptsTotal tracks orchestrator attempts, including retries
	BatchAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastmission_batch_attempts_total",
			Help: "Total number of batch processing attempts",
		},
	)

	// ItemsClassifiedTotal tracks classified items by outcome
	ItemsClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastmission_items_classified_total",
			Help: "Total number of classified items",
		},
		[]string{"outcome"},
	)

	// ClassificationLatency tracks the time spent classifying a single item
	ClassificationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fastmission_classification_latency_seconds",
			Help:    "Item classification latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BatchesEnqueuedTotal tracks batches handed to the dispatcher
	BatchesEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastmission_batches_enqueued_total",
			Help: "Total number of batches enqueued for processing",
		},
		[]string{"queue"},
	)

	// CatalogEntries tracks the size of the loaded code catalog
	CatalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastmission_catalog_entries",
			Help: "Number of entries in the loaded code catalog",
		},
	)
)

// Item classification outcomes
const (
	OutcomeValid     = "valid"
	OutcomeDivergent = "divergent"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)
