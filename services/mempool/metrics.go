package mempool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusMempoolSize    prometheus.Gauge
	prometheusMempoolAdded   prometheus.Counter
	prometheusMempoolEvicted prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainlite",
			Subsystem: "mempool",
			Name:      "size",
			Help:      "Number of transactions in the mempool",
		},
	)

	prometheusMempoolAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "mempool",
			Name:      "added",
			Help:      "Number of transactions admitted to the mempool",
		},
	)

	prometheusMempoolEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainlite",
			Subsystem: "mempool",
			Name:      "evicted",
			Help:      "Number of pooled transactions removed because a block spent their inputs",
		},
	)
}
