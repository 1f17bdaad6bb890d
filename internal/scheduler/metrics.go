package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "popflow_scheduler_jobs_registered",
		Help: "Number of jobs currently armed in the scheduler.",
	})

	jobsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popflow_scheduler_firings_total",
		Help: "Total job firings by outcome.",
	}, []string{"outcome"})

	firingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "popflow_scheduler_firing_duration_seconds",
		Help:    "Duration of job firings.",
		Buckets: prometheus.DefBuckets,
	})
)
