package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast metrics
	UpdatesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_broadcast_updates_published_total",
			Help: "Total number of price updates delivered to subscribers",
		},
	)

	UpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pairstream_broadcast_updates_dropped_total",
			Help: "Total number of price updates dropped for slow subscribers",
		},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pairstream_broadcast_subscribers",
			Help: "Number of active price update subscribers",
		},
	)
)

func PublishedInc() {
	UpdatesPublished.Inc()
}

func DroppedInc() {
	UpdatesDropped.Inc()
}

func SubscribersSet(n int) {
	Subscribers.Set(float64(n))
}
