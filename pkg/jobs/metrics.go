package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type controllerMetrics struct {
	submissions    *prometheus.CounterVec
	terminalStates *prometheus.CounterVec
	polls          *prometheus.CounterVec
	duration       prometheus.Histogram
	resultRechecks prometheus.Counter
}

func newControllerMetrics(reg prometheus.Registerer, backend string) *controllerMetrics {
	constLabels := prometheus.Labels{"backend": backend}
	return &controllerMetrics{
		submissions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sqlbridge",
			Name:        "job_submissions_total",
			Help:        "Total number of job submissions.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		terminalStates: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sqlbridge",
			Name:        "job_terminal_states_total",
			Help:        "Total number of jobs by terminal state.",
			ConstLabels: constLabels,
		}, []string{"state"}),
		polls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sqlbridge",
			Name:        "job_polls_total",
			Help:        "Total number of job state polls.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace:   "sqlbridge",
			Name:        "job_duration_seconds",
			Help:        "Time from submission to terminal state.",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
			ConstLabels: constLabels,
		}),
		resultRechecks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace:   "sqlbridge",
			Name:        "job_result_rechecks_total",
			Help:        "Total number of result lookups repeated because the result was not stored yet.",
			ConstLabels: constLabels,
		}),
	}
}
