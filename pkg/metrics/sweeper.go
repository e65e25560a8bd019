package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperJobMetrics records duration and outcome of sweeper jobs.
type SweeperJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	swept    *prometheus.CounterVec
}

// NewSweeperJobMetrics registers the sweeper job metrics on the provided
// registerer.
func NewSweeperJobMetrics(reg prometheus.Registerer) *SweeperJobMetrics {
	if reg == nil {
		return &SweeperJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tably",
		Subsystem: "sweeper",
		Name:      "job_duration_seconds",
		Help:      "Duration of sweeper jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tably",
		Subsystem: "sweeper",
		Name:      "job_success",
		Help:      "Successful sweeper job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tably",
		Subsystem: "sweeper",
		Name:      "job_failure",
		Help:      "Failed sweeper job executions.",
	}, []string{"job"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tably",
		Subsystem: "sweeper",
		Name:      "rows_swept_total",
		Help:      "Rows affected by sweeper jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, swept)
	return &SweeperJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		swept:    swept,
	}
}

// ObserveDuration records the duration for the named job.
func (m *SweeperJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (m *SweeperJobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (m *SweeperJobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddSwept records how many rows a job affected.
func (m *SweeperJobMetrics) AddSwept(job string, count int) {
	if m == nil || m.swept == nil || count <= 0 {
		return
	}
	m.swept.WithLabelValues(normalizeLabel(job)).Add(float64(count))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
