package blockchain

import (
	"sync"

	"github.com/bsv-blockchain/chainlite/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainAddBlock       prometheus.Histogram
	prometheusChainBlocksAccepted prometheus.Counter
	prometheusChainBlocksRejected prometheus.Counter
	prometheusChainSideBlocks     prometheus.Counter
	prometheusChainReorgs         prometheus.Counter
	prometheusChainReorgDepth     prometheus.Histogram
	prometheusChainBatchSize      prometheus.Histogram
	prometheusChainHeight         prometheus.Gauge
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainAddBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "add_block",
			Help:      "Duration of AddBlock calls in seconds",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusChainBlocksAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "blocks_accepted",
			Help:      "Number of blocks connected to the main chain",
		},
	)

	prometheusChainBlocksRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "blocks_rejected",
			Help:      "Number of blocks refused by AddBlock",
		},
	)

	prometheusChainSideBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "side_blocks",
			Help:      "Number of blocks stored off the main chain",
		},
	)

	prometheusChainReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "reorgs",
			Help:      "Number of completed reorganizations",
		},
	)

	prometheusChainReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "reorg_depth",
			Help:      "Number of main chain blocks undone by a reorganization",
			Buckets:   util.MetricsBucketsDepth,
		},
	)

	prometheusChainBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "batch_size",
			Help:      "Number of store operations committed per block",
			Buckets:   util.MetricsBucketsCount,
		},
	)

	prometheusChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainlite",
			Subsystem: "chain",
			Name:      "height",
			Help:      "Height of the best block",
		},
	)
}
