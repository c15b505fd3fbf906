package validator

import (
	"sync"

	"github.com/bsv-blockchain/chainlite/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusValidatorAccepted prometheus.Counter
	prometheusValidatorRejected prometheus.Counter
	prometheusValidatorDuration prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusValidatorAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "validator",
			Name:      "blocks_accepted",
			Help:      "Number of blocks that passed validation",
		},
	)

	prometheusValidatorRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "validator",
			Name:      "blocks_rejected",
			Help:      "Number of blocks that failed validation",
		},
	)

	prometheusValidatorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainlite",
			Subsystem: "validator",
			Name:      "validate_block",
			Help:      "Duration of local block validation in seconds",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
}
