// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	TransitionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_transitions_total",
			Help: "Applied application status transitions",
		},
		[]string{"action", "from", "to"},
	)

	TransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_transitions_rejected_total",
			Help: "Transitions refused or rolled back, by error code",
		},
		[]string{"action", "error_code"},
	)

	TransitionsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_transitions_replayed_total",
			Help: "Idempotent replays answered without a state change",
		},
		[]string{"action", "source"},
	)

	AllocationAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registration_allocation_attempts",
			Help:    "Attempts needed to allocate a serial",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"scope"},
	)

	AllocationExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_allocation_exhausted_total",
			Help: "Serial allocations that ran out of retries",
		},
		[]string{"scope"},
	)

	CertificatesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registration_certificates_issued_total",
			Help: "Registration certificates issued",
		},
	)

	EventsPublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_events_publish_failed_total",
			Help: "Domain events that could not be delivered to a sink",
		},
		[]string{"sink", "event"},
	)
)
