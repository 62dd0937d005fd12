package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/dbfleet/dbfleet/pkg/types"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	fams, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(fams))
	for _, f := range fams {
		out[f.GetName()] = f
	}
	return out
}

// value returns the value of the sample in fam whose labels match want.
func value(t *testing.T, fam *dto.MetricFamily, want map[string]string) float64 {
	t.Helper()
	if fam == nil {
		t.Fatal("metric family missing")
	}
next:
	for _, m := range fam.GetMetric() {
		labels := make(map[string]string)
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		for k, v := range want {
			if labels[k] != v {
				continue next
			}
		}
		switch {
		case m.Gauge != nil:
			return m.GetGauge().GetValue()
		case m.Counter != nil:
			return m.GetCounter().GetValue()
		case m.Histogram != nil:
			return float64(m.GetHistogram().GetSampleCount())
		}
	}
	t.Fatalf("%s: no sample with labels %v", fam.GetName(), want)
	return 0
}

func sampleSnapshot() types.Snapshot {
	return types.Snapshot{
		GeneratedAt: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Engines: []types.EngineSnapshot{
			{
				Engine:        types.EngineMongoDB,
				Counts:        types.Counts{Critical: 1, Warning: 2, Healthy: 5},
				ClusterCounts: types.Counts{Critical: 1, Healthy: 1},
				Stale:         true,
				Sources: []types.SourceResult{
					{SourceID: "mongo-a", Engine: types.EngineMongoDB, Failures: 2, Stale: true, UptimePct: 90, LastSuccess: time.Now()},
					{SourceID: "mongo-b", Engine: types.EngineMongoDB, UptimePct: 100, Dropped: 3, LastSuccess: time.Now()},
				},
			},
		},
	}
}

// --- snapshot gauges ---

func TestObserveSnapshot_SetsFleetGauges(t *testing.T) {
	m := New()
	m.ObserveSnapshot(sampleSnapshot(), 4, 2)

	fams := gather(t, m)
	if got := value(t, fams["dbfleet_nodes"], map[string]string{"engine": "mongodb", "status": "warning"}); got != 2 {
		t.Errorf("warning nodes = %v, want 2", got)
	}
	if got := value(t, fams["dbfleet_clusters"], map[string]string{"engine": "mongodb", "status": "warning"}); got != 0 {
		t.Errorf("warning clusters = %v, want explicit 0", got)
	}
	if got := value(t, fams["dbfleet_engine_stale"], map[string]string{"engine": "mongodb"}); got != 1 {
		t.Errorf("stale = %v, want 1", got)
	}
	if got := value(t, fams["dbfleet_alarms_firing"], nil); got != 4 {
		t.Errorf("firing = %v, want 4", got)
	}
	if got := value(t, fams["dbfleet_nodes_suppressed"], nil); got != 2 {
		t.Errorf("suppressed = %v, want 2", got)
	}
	if got := value(t, fams["dbfleet_snapshot_timestamp_seconds"], nil); got != float64(sampleSnapshot().GeneratedAt.Unix()) {
		t.Errorf("timestamp = %v", got)
	}
}

func TestObserveSnapshot_SetsSourceGauges(t *testing.T) {
	m := New()
	m.ObserveSnapshot(sampleSnapshot(), 0, 0)

	fams := gather(t, m)
	if got := value(t, fams["dbfleet_source_up"], map[string]string{"source": "mongo-a"}); got != 0 {
		t.Errorf("mongo-a up = %v, want 0", got)
	}
	if got := value(t, fams["dbfleet_source_up"], map[string]string{"source": "mongo-b"}); got != 1 {
		t.Errorf("mongo-b up = %v, want 1", got)
	}
	if got := value(t, fams["dbfleet_source_consecutive_failures"], map[string]string{"source": "mongo-a"}); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
	if got := value(t, fams["dbfleet_source_dropped_records"], map[string]string{"source": "mongo-b"}); got != 3 {
		t.Errorf("dropped = %v, want 3", got)
	}
}

func TestObserveSnapshot_RemovesVanishedEngines(t *testing.T) {
	m := New()
	m.ObserveSnapshot(sampleSnapshot(), 0, 0)
	m.ObserveSnapshot(types.Snapshot{GeneratedAt: time.Now()}, 0, 0)

	fams := gather(t, m)
	if fam, ok := fams["dbfleet_nodes"]; ok && len(fam.GetMetric()) != 0 {
		t.Errorf("dbfleet_nodes still has %d samples", len(fam.GetMetric()))
	}
}

// --- fetch metrics ---

func TestObserveFetch(t *testing.T) {
	m := New()
	m.ObserveFetch("pg", types.EnginePostgreSQL, 120*time.Millisecond, nil)
	m.ObserveFetch("pg", types.EnginePostgreSQL, 5*time.Second, errors.New("timeout"))

	fams := gather(t, m)
	labels := map[string]string{"source": "pg", "engine": "postgresql"}
	if got := value(t, fams["dbfleet_fetch_duration_seconds"], labels); got != 2 {
		t.Errorf("histogram count = %v, want 2", got)
	}
	if got := value(t, fams["dbfleet_fetch_errors_total"], labels); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

// --- exposition ---

func TestHandler_ServesTextExposition(t *testing.T) {
	m := New()
	m.ObserveSnapshot(sampleSnapshot(), 1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var parser expfmt.TextParser
	fams, err := parser.TextToMetricFamilies(rec.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	for _, name := range []string{"dbfleet_nodes", "dbfleet_alarms_firing", "go_goroutines"} {
		if _, ok := fams[name]; !ok {
			t.Errorf("exposition lacks %s", name)
		}
	}
}
