package zeacore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Name:      "writes_enqueued_total",
			Help:      "Asynchronous writes accepted into the write queue.",
		},
		[]string{"entity"},
	)

	writesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Name:      "writes_failed_total",
			Help:      "Asynchronous writes abandoned after retries.",
		},
		[]string{"entity"},
	)
)
