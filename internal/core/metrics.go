package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var JobsDispatchedCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "flashd",
	Subsystem: "scheduler",
	Name:      "jobs_dispatched_total",
	Help:      "Count of jobs picked up by the scheduler",
})

var JobsFinishedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "flashd",
	Subsystem: "scheduler",
	Name:      "jobs_finished_total",
	Help:      "Count of jobs that reached an end state, by status & the phase they ended in",
}, []string{"status", "phase"})

var BuildsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "flashd",
	Subsystem: "jobstore",
	Name:      "builds_total",
	Help:      "Count of firmware builds by result",
}, []string{"status"})

var DeployDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "flashd",
	Subsystem: "scheduler",
	Name:      "deploy_duration_seconds",
	Help:      "Duration of firmware deploys",
	Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
}, []string{"transport", "status"})

var SchedulerFaultsCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "flashd",
	Subsystem: "scheduler",
	Name:      "faults_total",
	Help:      "Count of scheduler cycles that failed & backed off",
})

var WorkspacesTidiedCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "flashd",
	Subsystem: "jobstore",
	Name:      "workspaces_tidied_total",
	Help:      "Count of orphaned workspaces removed",
})
