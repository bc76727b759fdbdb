package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchCommits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_store_batch_commits_total",
			Help: "Total number of committed batch transactions",
		},
	)

	batchEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_store_batch_events_total",
			Help: "Total number of sync events written in batches",
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairstream_store_batch_duration_seconds",
			Help:    "Duration of batch transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	confirmedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_store_confirmed_rows_total",
			Help: "Total number of sync event rows marked confirmed",
		},
	)

	invalidatedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_store_invalidated_rows_total",
			Help: "Total number of sync event rows marked unconfirmed by reorg handling",
		},
	)
)

func BatchCommitLog(events int, duration time.Duration) {
	batchCommits.Inc()
	batchEvents.Add(float64(events))
	batchDuration.Observe(duration.Seconds())
}

func ConfirmedRowsLog(rows int64) {
	confirmedRows.Add(float64(rows))
}

func InvalidatedRowsLog(rows int64) {
	invalidatedRows.Add(float64(rows))
}
