// Package metrics exposes orchestrator counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records orchestrator activity. A nil *Collector is valid and
// records nothing.
type Collector struct {
	admitted   *prometheus.CounterVec
	finished   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	live       *prometheus.GaugeVec
	bytes      *prometheus.CounterVec
}

// NewCollector registers the vmshift collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	return &Collector{
		admitted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmshift_jobs_admitted_total",
				Help: "Jobs accepted by the control API",
			},
			[]string{"kind"},
		),
		finished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmshift_jobs_finished_total",
				Help: "Jobs that reached a terminal outcome",
			},
			[]string{"kind", "outcome"},
		),
		rejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmshift_capacity_rejections_total",
				Help: "Job creations refused because the server was at capacity",
			},
			[]string{"kind"},
		),
		live: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmshift_live_workers",
				Help: "Workers whose goroutine is still running",
			},
			[]string{"kind"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "vmshift_bytes_transferred_total",
				Help: "Bytes moved by bulk transfers",
			},
			[]string{"kind"},
		),
	}
}

func (c *Collector) JobAdmitted(kind string) {
	if c == nil {
		return
	}
	c.admitted.WithLabelValues(kind).Inc()
}

func (c *Collector) JobFinished(kind string, ok bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	c.finished.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) CapacityRejected(kind string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(kind).Inc()
}

// WorkerStarted and WorkerStopped bracket a worker goroutine. Controllers
// sharing a collector add up.
func (c *Collector) WorkerStarted(kind string) {
	if c == nil {
		return
	}
	c.live.WithLabelValues(kind).Inc()
}

func (c *Collector) WorkerStopped(kind string) {
	if c == nil {
		return
	}
	c.live.WithLabelValues(kind).Dec()
}

func (c *Collector) AddBytes(kind string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytes.WithLabelValues(kind).Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
