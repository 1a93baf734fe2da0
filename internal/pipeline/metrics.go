package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerscan_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage", "status"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerscan_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"}, // ok, failed
	)

	transactionsExtracted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerscan_pipeline_transactions",
			Help:    "Transactions extracted per document",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)
