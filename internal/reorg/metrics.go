package reorg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_reorgs_detected_total",
			Help: "Total number of blockchain reorganizations detected",
		},
	)

	reorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairstream_reorg_depth_blocks",
			Help:    "Depth of blockchain reorganizations in blocks",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	reorgLastDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairstream_reorg_last_detected_timestamp",
			Help: "Unix timestamp of last reorg detection",
		},
	)

	reorgForkPoint = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairstream_reorg_fork_point_block",
			Help:    "Block numbers where reorg fork points were found",
			Buckets: []float64{0, 1000000, 5000000, 10000000, 15000000, 20000000, 25000000},
		},
	)
)

func ReorgDetectedLog(depth, forkPoint uint64) {
	reorgsDetected.Inc()
	reorgDepth.Observe(float64(depth))
	reorgLastDetected.Set(float64(time.Now().UTC().Unix()))
	reorgForkPoint.Observe(float64(forkPoint))
}
