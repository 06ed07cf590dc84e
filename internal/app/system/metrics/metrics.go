// internal/app/system/metrics/metrics.go
//
// Package metrics owns the Prometheus registry and the collectors the
// service exports on /metrics. A nil *Reaper is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Reaper collects trash sweep outcomes.
type Reaper struct {
	sweeps   prometheus.Counter
	entries  *prometheus.CounterVec
	flagged  prometheus.Gauge
	duration prometheus.Histogram
}

// NewReaper registers the sweep collectors on reg.
func NewReaper(reg prometheus.Registerer) *Reaper {
	f := promauto.With(reg)
	return &Reaper{
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "stratadrive_reaper_sweeps_total",
			Help: "Trash sweeps completed",
		}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stratadrive_reaper_entries_total",
			Help: "Trashed files processed by outcome",
		}, []string{"outcome"}),
		flagged: f.NewGauge(prometheus.GaugeOpts{
			Name: "stratadrive_reaper_flagged_files",
			Help: "Files flagged for deletion at the start of the last sweep",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratadrive_reaper_sweep_duration_seconds",
			Help:    "Duration of trash sweeps in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}),
	}
}

// ObserveSweep records one finished sweep.
func (m *Reaper) ObserveSweep(scanned, reaped, skipped, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.flagged.Set(float64(scanned))
	m.entries.WithLabelValues("reaped").Add(float64(reaped))
	m.entries.WithLabelValues("skipped").Add(float64(skipped))
	m.entries.WithLabelValues("failed").Add(float64(failed))
	m.duration.Observe(took.Seconds())
}

// Inventory reports document totals at scrape time.
type Inventory struct {
	fetch   func(ctx context.Context) map[string]int64
	timeout time.Duration
	desc    *prometheus.Desc
}

// NewInventory returns a collector that calls fetch on every scrape and
// exports one gauge per key. Register it with reg.MustRegister.
func NewInventory(fetch func(ctx context.Context) map[string]int64, timeout time.Duration) *Inventory {
	return &Inventory{
		fetch:   fetch,
		timeout: timeout,
		desc: prometheus.NewDesc(
			"stratadrive_documents",
			"Stored documents by kind",
			[]string{"kind"}, nil,
		),
	}
}

func (i *Inventory) Describe(ch chan<- *prometheus.Desc) { ch <- i.desc }

func (i *Inventory) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	for kind, n := range i.fetch(ctx) {
		ch <- prometheus.MustNewConstMetric(i.desc, prometheus.GaugeValue, float64(n), kind)
	}
}
