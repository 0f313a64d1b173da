package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/batchlog/pkg/event"
)

const namespace = "batchlog"

// Metrics records event processing counters. The zero value is not usable;
// create one with NewMetrics.
type Metrics struct {
	reg *prometheus.Registry

	applied   *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	appended  prometheus.Counter
	rotations prometheus.Counter
	position  prometheus.Gauge
	jobs      *prometheus.GaugeVec

	mu           sync.Mutex
	seenStatuses map[event.Status]bool
}

// Default is the metrics set served by the HTTP server. Nil until
// InitMetrics runs.
var Default *Metrics

// InitMetrics creates Default with process and Go runtime collectors.
func InitMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	Default = NewMetrics(reg)
	return Default
}

// NewMetrics registers the batchlog collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Events applied to the job registry, by event type.",
		}, []string{"type"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Events not applied, by cause (codec, stale, orphan, illegal, orphan_expired).",
		}, []string{"cause"}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_appends_total",
			Help:      "Records appended to the event log.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_rotations_total",
			Help:      "Event log segment switches.",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_position",
			Help:      "Last event log position processed.",
		}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Live jobs by status.",
		}, []string{"status"}),
		seenStatuses: make(map[event.Status]bool),
	}
	reg.MustRegister(m.applied, m.skipped, m.appended, m.rotations, m.position, m.jobs)
	return m
}

func (m *Metrics) EventApplied(t event.Type, pos uint64) {
	m.applied.WithLabelValues(t.String()).Inc()
	m.position.Set(float64(pos))
}

func (m *Metrics) EventSkipped(cause string) {
	m.skipped.WithLabelValues(cause).Inc()
}

func (m *Metrics) LogAppended() { m.appended.Inc() }

func (m *Metrics) LogRotated() { m.rotations.Inc() }

// JobsByStatus replaces the live job gauges. Statuses absent from counts
// are reset to zero.
func (m *Metrics) JobsByStatus(counts map[event.Status]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.seenStatuses {
		if _, ok := counts[s]; !ok {
			m.jobs.WithLabelValues(s.String()).Set(0)
		}
	}
	for s, n := range counts {
		m.seenStatuses[s] = true
		m.jobs.WithLabelValues(s.String()).Set(float64(n))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
