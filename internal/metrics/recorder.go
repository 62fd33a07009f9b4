package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aegis_signal"

// Recorder implements the engine, quota gate and cache observers
// ⭐ SSOT: 모든 Prometheus 메트릭은 여기서 정의
type Recorder struct {
	gatherer prometheus.Gatherer

	quotaGranted prometheus.Counter
	quotaDenied  prometheus.Counter
	quotaWait    prometheus.Histogram
	quotaLastAt  prometheus.Gauge

	cacheEvents *prometheus.CounterVec

	taskTotal    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	runTotal     *prometheus.CounterVec
	runDuration  prometheus.Histogram

	jobTotal *prometheus.CounterVec
}

// New registers metrics on the default registry. Call once per process.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers metrics on reg
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	f := promauto.With(reg)

	return &Recorder{
		gatherer: gatherer,

		quotaGranted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "granted_total",
			Help:      "Upstream calls admitted by the quota gate",
		}),
		quotaDenied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "denied_total",
			Help:      "Upstream calls refused because the daily quota was spent",
		}),
		quotaWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the per-minute window",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		quotaLastAt: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "last_grant_timestamp_seconds",
			Help:      "Unix time of the last admitted upstream call",
		}),

		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Response cache events by kind",
		}, []string{"event"}),

		taskTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "runs_total",
			Help:      "Task executions by task and outcome",
		}, []string{"task", "outcome"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Task execution time",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"task"}),
		runTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Analysis runs by outcome",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "End to end analysis run time",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		jobTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Scheduled watchlist jobs by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveGrant implements quota.Observer
func (r *Recorder) ObserveGrant(at time.Time) {
	r.quotaGranted.Inc()
	r.quotaLastAt.Set(float64(at.Unix()))
}

// ObserveDenied implements quota.Observer
func (r *Recorder) ObserveDenied() {
	r.quotaDenied.Inc()
}

// ObserveWait implements quota.Observer
func (r *Recorder) ObserveWait(d time.Duration) {
	r.quotaWait.Observe(d.Seconds())
}

// ObserveCache implements respcache.Observer
func (r *Recorder) ObserveCache(event string) {
	r.cacheEvents.WithLabelValues(event).Inc()
}

// ObserveTask implements brain.Observer
func (r *Recorder) ObserveTask(name string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.taskTotal.WithLabelValues(name, outcome).Inc()
	r.taskDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveRun implements brain.Observer
func (r *Recorder) ObserveRun(outcome string, d time.Duration) {
	r.runTotal.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(d.Seconds())
}

// ObserveJob records a scheduler job outcome
func (r *Recorder) ObserveJob(success bool) {
	if success {
		r.jobTotal.WithLabelValues("success").Inc()
		return
	}
	r.jobTotal.WithLabelValues("failure").Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
