package prefetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refill outcomes used as the "outcome" label.
const (
	outcomeSuccess = "success"
	outcomeEmpty   = "empty"
	outcomeFailure = "failure"
)

var (
	// RefillsTotal tracks per-category refills by outcome
	RefillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_refills_total",
			Help: "Total number of category refills by outcome",
		},
		[]string{"category", "outcome"}, // "success", "empty", "failure"
	)

	// RefillDuration tracks the wall time of a refill batch
	RefillDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookshelf_refill_duration_seconds",
			Help:    "Duration of refill batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"}, // "warm", "extend"
	)

	// bufferedRecords tracks the number of records held per category
	bufferedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookshelf_buffered_records",
			Help: "Current number of buffered records per category",
		},
		[]string{"category"},
	)

	// ConsumedRecords tracks records handed out per category
	ConsumedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookshelf_consumed_records_total",
			Help: "Total number of records served by consume",
		},
		[]string{"category"},
	)

	// ConsumeMisses tracks consumes on categories that were not cached
	ConsumeMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookshelf_consume_misses_total",
			Help: "Total number of consume calls on uncached categories",
		},
	)
)
