// Package metrics exposes ingestion counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockvault"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	batches   *prometheus.CounterVec
	symbols   *prometheus.CounterVec
	bars      prometheus.Counter
	samples   prometheus.Counter
	cycles    *prometheus.CounterVec
	lastCycle *prometheus.GaugeVec
}

// New creates a Metrics registered on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Provider batch calls by result.",
		}, []string{"result"}),
		symbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_total",
			Help:      "Per-symbol fetch outcomes.",
		}, []string{"outcome"}),
		bars: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_written_total",
			Help:      "Daily bars inserted into the historical store.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Live price samples inserted.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed job cycles by job and result.",
		}, []string{"job", "result"}),
		lastCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last successful cycle per job.",
		}, []string{"job"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batches, m.symbols, m.bars, m.samples, m.cycles, m.lastCycle,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBatch counts one provider batch call.
func (m *Metrics) ObserveBatch(err error) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(result(err)).Inc()
}

// ObserveSymbol counts one per-symbol outcome ("ok", "empty", "failed").
func (m *Metrics) ObserveSymbol(outcome string) {
	if m == nil {
		return
	}
	m.symbols.WithLabelValues(outcome).Inc()
}

// AddBars counts inserted bars.
func (m *Metrics) AddBars(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bars.Add(float64(n))
}

// AddSamples counts inserted samples.
func (m *Metrics) AddSamples(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.samples.Add(float64(n))
}

// ObserveCycle counts a finished cycle of job and, on success, records at as
// the last successful run.
func (m *Metrics) ObserveCycle(job string, err error, at time.Time) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(job, result(err)).Inc()
	if err == nil {
		m.lastCycle.WithLabelValues(job).Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the registry to path in the text exposition format,
// for the node_exporter textfile collector. Batch commands call it on exit.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
