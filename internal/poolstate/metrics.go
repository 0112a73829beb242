package poolstate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HitsTotal tracks pool state lookups served from cache.
	HitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_poolstate_hits_total",
		Help: "Total number of pool state cache hits",
	})

	// MissesTotal tracks lookups for pools with no cached state.
	MissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_poolstate_misses_total",
		Help: "Total number of pool state cache misses",
	})

	// UpdatesTotal tracks snapshot writes.
	UpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexpulse_poolstate_updates_total",
		Help: "Total number of pool state snapshot updates",
	})
)
