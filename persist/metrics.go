package persist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsSucceeded prometheus.Counter
	jobsFailed    prometheus.Counter
	jobDuration   prometheus.Histogram
}

// NewMetrics registers the persist pipeline's prometheus series against reg.
func NewMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		jobsSucceeded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_persist_jobs_succeeded_total",
			Help: "Number of persist jobs that completed successfully.",
		}),
		jobsFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_persist_jobs_failed_total",
			Help: "Number of persist jobs that failed permanently.",
		}),
		jobDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_persist_job_duration_seconds",
			Help:    "Wall-clock duration of one persist job, from dequeue to completion.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *metrics) observeJob(_ int, d time.Duration, err error) {
	m.jobDuration.Observe(d.Seconds())
	if err != nil {
		m.jobsFailed.Inc()
		return
	}
	m.jobsSucceeded.Inc()
}
