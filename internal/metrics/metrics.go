// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_publish_attempts_total",
		Help: "Provider publish attempts by provider and outcome kind.",
	}, []string{"provider", "outcome"})

	DraftsMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_drafts_materialized_total",
		Help: "Materialization results per occurrence (created, skipped, failed).",
	}, []string{"result"})

	DispatchRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_dispatch_runs_total",
		Help: "Completed publish dispatcher passes.",
	})

	BackgroundTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_background_tasks_total",
		Help: "Background task transitions by kind and status.",
	}, []string{"kind", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
