package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the fetch engine.
var (
	coalescedWaitersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stale_coalesced_waiters_total",
		Help: "Total callers that joined an in-flight fetch instead of starting one",
	})

	inflightFetches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stale_inflight_fetches",
		Help: "Number of foreground upstream fetches in progress",
	})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stale_fetch_errors_total",
		Help: "Total foreground fetch failures by error class",
	}, []string{"class"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stale_refresh_total",
		Help: "Total background refresh attempts by result",
	}, []string{"result"}) // "success", "failure"

	refreshAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stale_refresh_abandoned_total",
		Help: "Total refresh jobs abandoned after exceeding the backoff ceiling",
	})

	refreshJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stale_refresh_jobs",
		Help: "Number of scheduled refresh jobs",
	})
)
