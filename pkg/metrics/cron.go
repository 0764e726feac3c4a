package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep runs are expected to take seconds to a few minutes.
var cronDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900}

// CronJobMetrics records per-job run counts, latency and the time of the last
// success, which is what staleness alerts key on.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of cron job runs.",
			Buckets:   cronDurationBuckets,
		}, []string{"job"}),
		success: counterVec("cron", "job_success_total", "Cron job runs that returned no error.", "job"),
		failure: counterVec("cron", "job_failure_total", "Cron job runs that returned an error.", "job"),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful run.",
		}, []string{"job"}),
		now: time.Now,
	}
	reg.MustRegister(m.duration, m.success, m.failure, m.lastSuccess)
	return m
}

func (m *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	label := normalizeLabel(job)
	m.success.WithLabelValues(label).Inc()
	m.lastSuccess.WithLabelValues(label).Set(float64(m.now().Unix()))
}

func (m *CronJobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}
