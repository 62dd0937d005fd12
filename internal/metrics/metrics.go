// Package metrics exposes fleet health and poller behaviour as Prometheus
// collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbfleet/dbfleet/pkg/types"
)

var statuses = []types.HealthStatus{types.StatusCritical, types.StatusWarning, types.StatusHealthy}

// Metrics holds all Prometheus metrics
type Metrics struct {
	reg *prometheus.Registry

	// Fleet metrics, rebuilt from every published snapshot
	Nodes           *prometheus.GaugeVec
	Clusters        *prometheus.GaugeVec
	EngineStale     *prometheus.GaugeVec
	EngineDegraded  *prometheus.GaugeVec
	SnapshotTime    prometheus.Gauge
	AlarmsFiring    prometheus.Gauge
	NodesSuppressed prometheus.Gauge

	// Source metrics
	SourceUp       *prometheus.GaugeVec
	SourceFailures *prometheus.GaugeVec
	SourceUptime   *prometheus.GaugeVec
	SourceDropped  *prometheus.GaugeVec
	FetchDuration  *prometheus.HistogramVec
	FetchErrors    *prometheus.CounterVec
}

// New creates the metrics and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		Nodes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_nodes",
				Help: "Number of nodes per engine and health status",
			},
			[]string{"engine", "status"},
		),
		Clusters: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_clusters",
				Help: "Number of clusters per engine and health status",
			},
			[]string{"engine", "status"},
		),
		EngineStale: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_engine_stale",
				Help: "1 when at least one source of the engine failed its last fetch",
			},
			[]string{"engine"},
		),
		EngineDegraded: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_engine_degraded",
				Help: "1 when at least one source of the engine reached the failure limit",
			},
			[]string{"engine"},
		),
		SnapshotTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "dbfleet_snapshot_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		}),
		AlarmsFiring: f.NewGauge(prometheus.GaugeOpts{
			Name: "dbfleet_alarms_firing",
			Help: "Number of node alarms currently firing",
		}),
		NodesSuppressed: f.NewGauge(prometheus.GaugeOpts{
			Name: "dbfleet_nodes_suppressed",
			Help: "Number of nodes whose alarms are silenced",
		}),

		SourceUp: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_source_up",
				Help: "1 when the last fetch of the source succeeded",
			},
			[]string{"source", "engine"},
		),
		SourceFailures: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_source_consecutive_failures",
				Help: "Consecutive failed fetches of the source",
			},
			[]string{"source", "engine"},
		),
		SourceUptime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_source_uptime_percent",
				Help: "Share of successful fetches over the recent window",
			},
			[]string{"source", "engine"},
		),
		SourceDropped: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbfleet_source_dropped_records",
				Help: "Records dropped by the adapter in the last fetch",
			},
			[]string{"source", "engine"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbfleet_fetch_duration_seconds",
				Help:    "Duration of telemetry fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "engine"},
		),
		FetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbfleet_fetch_errors_total",
				Help: "Total number of failed telemetry fetches",
			},
			[]string{"source", "engine"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveFetch records the duration and outcome of one fetch.
func (m *Metrics) ObserveFetch(sourceID string, engine types.Engine, d time.Duration, err error) {
	m.FetchDuration.WithLabelValues(sourceID, string(engine)).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(sourceID, string(engine)).Inc()
	}
}

// ObserveSnapshot replaces the fleet and source gauges with the content of snap.
// Engines missing from snap disappear from the gauges.
func (m *Metrics) ObserveSnapshot(snap types.Snapshot, firing, suppressed int) {
	m.Nodes.Reset()
	m.Clusters.Reset()
	m.EngineStale.Reset()
	m.EngineDegraded.Reset()
	m.SourceUp.Reset()
	m.SourceFailures.Reset()
	m.SourceUptime.Reset()
	m.SourceDropped.Reset()

	for _, es := range snap.Engines {
		e := string(es.Engine)
		for _, s := range statuses {
			m.Nodes.WithLabelValues(e, s.String()).Set(float64(count(es.Counts, s)))
			m.Clusters.WithLabelValues(e, s.String()).Set(float64(count(es.ClusterCounts, s)))
		}
		m.EngineStale.WithLabelValues(e).Set(boolGauge(es.Stale))
		m.EngineDegraded.WithLabelValues(e).Set(boolGauge(es.Degraded))

		for _, src := range es.Sources {
			m.SourceUp.WithLabelValues(src.SourceID, e).Set(boolGauge(src.Failures == 0 && !src.LastSuccess.IsZero()))
			m.SourceFailures.WithLabelValues(src.SourceID, e).Set(float64(src.Failures))
			m.SourceUptime.WithLabelValues(src.SourceID, e).Set(src.UptimePct)
			m.SourceDropped.WithLabelValues(src.SourceID, e).Set(float64(src.Dropped))
		}
	}

	m.SnapshotTime.Set(float64(snap.GeneratedAt.Unix()))
	m.AlarmsFiring.Set(float64(firing))
	m.NodesSuppressed.Set(float64(suppressed))
}

func count(c types.Counts, s types.HealthStatus) int {
	switch s {
	case types.StatusCritical:
		return c.Critical
	case types.StatusWarning:
		return c.Warning
	default:
		return c.Healthy
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
