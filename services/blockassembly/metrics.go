package blockassembly

import (
	"sync"

	"github.com/bsv-blockchain/chainlite/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusMinerHashes              prometheus.Counter
	prometheusMinerBlocksFound         prometheus.Counter
	prometheusMinerCandidatesAbandoned prometheus.Counter
	prometheusMinerSubmitErrors        prometheus.Counter
	prometheusMinerCandidateTxs        prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusMinerHashes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "miner",
			Name:      "hashes",
			Help:      "Number of block header hashes computed by the miner",
		},
	)

	prometheusMinerBlocksFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "miner",
			Name:      "blocks_found",
			Help:      "Number of candidates that met their target",
		},
	)

	prometheusMinerCandidatesAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "miner",
			Name:      "candidates_abandoned",
			Help:      "Number of candidates dropped because the tip changed or mining stopped",
		},
	)

	prometheusMinerSubmitErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "miner",
			Name:      "submit_errors",
			Help:      "Number of solved candidates the chain refused",
		},
	)

	prometheusMinerCandidateTxs = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainlite",
			Subsystem: "miner",
			Name:      "candidate_transactions",
			Help:      "Number of transactions in each candidate block",
			Buckets:   util.MetricsBucketsCount,
		},
	)
}
