package gas

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks successful fetches by source.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_gas_fetches_total",
			Help: "Total number of successful gas price fetches",
		},
		[]string{"source"},
	)

	// FetchFailuresTotal tracks failed fetches by source.
	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_gas_fetch_failures_total",
			Help: "Total number of failed gas price fetches",
		},
		[]string{"source"},
	)

	// CurrentGasPriceGwei tracks the last cached gas price.
	CurrentGasPriceGwei = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexpulse_gas_price_gwei",
		Help: "Last cached gas price in gwei",
	})

	// StaleGauge is 1 while the cache is serving a stale value.
	StaleGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexpulse_gas_price_stale",
		Help: "Whether the gas price cache is stale (1) or fresh (0)",
	})

	// BreakerTripsTotal counts circuit breaker trips by source.
	BreakerTripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexpulse_gas_breaker_trips_total",
			Help: "Total number of gas source circuit breaker trips",
		},
		[]string{"source"},
	)

	// BreakerOpenGauge is 1 while a source's breaker is open.
	BreakerOpenGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dexpulse_gas_breaker_open",
			Help: "Whether a gas source circuit breaker is open (1) or closed (0)",
		},
		[]string{"source"},
	)
)
