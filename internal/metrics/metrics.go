package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Indexing metrics
	LastIndexedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairstream_last_indexed_block",
			Help: "The last block number durably persisted",
		},
		[]string{"pair"},
	)

	ChainHead = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairstream_chain_head_block",
			Help: "The latest block number reported by the node",
		},
		[]string{"pair"},
	)

	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairstream_blocks_processed_total",
			Help: "Total number of blocks scanned for sync events",
		},
		[]string{"pair"},
	)

	EventsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairstream_sync_events_decoded_total",
			Help: "Total number of sync events decoded",
		},
		[]string{"pair"},
	)

	CurrentPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairstream_current_price",
			Help: "Most recently computed pair price",
		},
		[]string{"pair"},
	)

	BatchProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairstream_batch_processing_duration_seconds",
			Help:    "Time taken to process one batch of blocks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair"},
	)

	IndexingRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairstream_indexing_rate_blocks_per_second",
			Help: "Current indexing rate in blocks per second",
		},
		[]string{"pair"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairstream_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairstream_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairstream_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairstream_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pairstream_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func LastIndexedBlockSet(pair string, blockNum uint64) {
	LastIndexedBlock.WithLabelValues(pair).Set(float64(blockNum))
}

func ChainHeadSet(pair string, blockNum uint64) {
	ChainHead.WithLabelValues(pair).Set(float64(blockNum))
}

func BlocksProcessedInc(pair string, count uint64) {
	BlocksProcessed.WithLabelValues(pair).Add(float64(count))
}

func EventsDecodedInc(pair string, count int) {
	EventsDecoded.WithLabelValues(pair).Add(float64(count))
}

func CurrentPriceSet(pair string, price float64) {
	CurrentPrice.WithLabelValues(pair).Set(price)
}

func BatchProcessingTimeLog(pair string, duration time.Duration) {
	BatchProcessingTime.WithLabelValues(pair).Observe(duration.Seconds())
}

func IndexingRateLog(pair string, rate float64) {
	IndexingRate.WithLabelValues(pair).Set(rate)
}

func ErrorInc(component string, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	// Update uptime
	Uptime.Set(time.Since(startTime).Seconds())

	// Update goroutine count
	Goroutines.Set(float64(runtime.NumGoroutine()))

	// Update memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
