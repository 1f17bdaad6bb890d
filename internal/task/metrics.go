package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "popflow_pool_active_workers",
		Help: "Number of callables currently running on the worker pool",
	})

	poolCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popflow_pool_calls_total",
		Help: "Total number of worker pool calls by outcome",
	}, []string{"outcome"})

	poolLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "popflow_pool_call_duration_seconds",
		Help:    "Time taken by callables on the worker pool",
		Buckets: prometheus.DefBuckets,
	})

	tasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popflow_tasks_submitted_total",
		Help: "Total number of tasks submitted to the manager",
	}, []string{"kind"})

	tasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "popflow_tasks_finished_total",
		Help: "Total number of tasks reaching a terminal status",
	}, []string{"status"})

	tasksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "popflow_tasks_tracked",
		Help: "Number of tasks currently tracked by the manager",
	})
)
