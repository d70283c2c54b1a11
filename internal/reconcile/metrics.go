package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Subsystem: "readmodel",
			Name:      "cache_hits_total",
			Help:      "Lookups served from the entity cache without a fetch.",
		},
		[]string{"entity"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Subsystem: "readmodel",
			Name:      "cache_misses_total",
			Help:      "Lookups that required a backend fetch (miss or stale).",
		},
		[]string{"entity"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Subsystem: "readmodel",
			Name:      "fetches_total",
			Help:      "Backend fetches by outcome.",
		},
		[]string{"entity", "outcome"},
	)

	staleServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Subsystem: "readmodel",
			Name:      "stale_served_total",
			Help:      "View models served from stale cache after a failed refresh.",
		},
		[]string{"entity"},
	)

	linkCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Subsystem: "readmodel",
			Name:      "link_created_total",
			Help:      "Association records created on first access.",
		},
	)

	linkConflictTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zeacore_client",
			Subsystem: "readmodel",
			Name:      "link_conflict_total",
			Help:      "Link inserts lost to a concurrent creator and re-read.",
		},
	)
)

const (
	outcomeOK           = "ok"
	outcomeNotFound     = "not_found"
	outcomeTransport    = "transport"
	outcomeAuth         = "authorization"
	outcomeTableMissing = "table_missing"
	outcomeOther        = "other"
)
