package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dbfleet/dbfleet/internal/alarm"
	"github.com/dbfleet/dbfleet/internal/api"
	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/internal/store"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// --- test helpers -----------------------------------------------------------

func node(e types.Engine, cluster, name string, s types.HealthStatus) types.NodeHealth {
	return types.NodeHealth{
		NodeRecord: types.NodeRecord{Engine: e, ClusterID: cluster, Name: name, Role: "PRIMARY", Service: types.ServiceRunning},
		Status:     s,
		Priority:   s.Priority(),
	}
}

func result(id string, e types.Engine, nodes ...types.NodeHealth) types.SourceResult {
	return types.SourceResult{
		SourceID:    id,
		Engine:      e,
		State:       types.SourceIdle,
		LastOutcome: types.SourceSucceeded,
		Nodes:       nodes,
		LastAttempt: time.Now(),
		LastSuccess: time.Now(),
		UptimePct:   100,
	}
}

// fixture publishes results into a fresh store and observes their nodes.
func fixture(results ...types.SourceResult) (*store.Store, *alarm.Registry) {
	st := store.New(5 * time.Minute)
	for _, r := range results {
		st.Put(r)
	}
	snap := st.Publish()

	reg := alarm.NewRegistry(nil)
	var keys []string
	for _, n := range snap.Nodes() {
		keys = append(keys, n.Key())
	}
	reg.Observe(keys)
	return st, reg
}

func defaultFixture() (*store.Store, *alarm.Registry) {
	return fixture(
		result("mongo-a", types.EngineMongoDB,
			node(types.EngineMongoDB, "rs0", "m1", types.StatusHealthy),
			node(types.EngineMongoDB, "rs0", "m2", types.StatusCritical),
		),
		result("pg-a", types.EnginePostgreSQL,
			node(types.EnginePostgreSQL, "pg-main", "p1", types.StatusWarning),
		),
	)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func put(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	st, reg := fixture()
	rr := get(t, api.New(st, reg, nil), "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" || resp.NodeCount != 0 || resp.SourceCount != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealth_Counts(t *testing.T) {
	st, reg := defaultFixture()
	rr := get(t, api.New(st, reg, nil), "/api/v1/health")

	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "critical" {
		t.Errorf("state: got %q, want critical", resp.State)
	}
	if resp.CriticalCount != 1 || resp.WarningCount != 1 || resp.HealthyCount != 1 || resp.NodeCount != 3 {
		t.Errorf("counts = %+v", resp)
	}
	if resp.ClusterCount != 2 || resp.CriticalClusters != 1 {
		t.Errorf("clusters = %d critical = %d, want 2/1", resp.ClusterCount, resp.CriticalClusters)
	}
	if resp.SourceCount != 2 {
		t.Errorf("source_count = %d, want 2", resp.SourceCount)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	st, reg := fixture()
	rr := httptest.NewRecorder()
	api.New(st, reg, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/snapshot -------------------------------------------------------

func TestSnapshot_CountsAndSuppressionMap(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)

	var resp api.SnapshotResponse
	decode(t, get(t, h, "/api/v1/snapshot"), &resp)

	if resp.CriticalCount != 1 || resp.WarningCount != 1 || resp.HealthyCount != 1 {
		t.Errorf("counts = %d/%d/%d", resp.CriticalCount, resp.WarningCount, resp.HealthyCount)
	}
	if len(resp.Engines) != 2 || resp.Engines[0].Engine != types.EngineMongoDB {
		t.Fatalf("engines = %+v", resp.Engines)
	}
	rs0 := resp.Engines[0].Clusters[0]
	if rs0.Status != types.StatusCritical || len(rs0.Members) != 2 {
		t.Errorf("rs0 = %+v", rs0)
	}
	if rs0.Members[0].Name != "m2" {
		t.Errorf("first member = %q, want the critical m2", rs0.Members[0].Name)
	}
	muted, ok := resp.Suppressed["mongodb/rs0/m2"]
	if !ok || muted {
		t.Errorf("suppressed[m2] = %v,%v, want present and false", muted, ok)
	}
	if len(resp.Suppressed) != 3 {
		t.Errorf("suppressed has %d keys, want 3", len(resp.Suppressed))
	}
}

func TestSnapshot_EmptyIsNotNull(t *testing.T) {
	st, reg := fixture()
	rr := get(t, api.New(st, reg, nil), "/api/v1/snapshot")

	var raw map[string]interface{}
	decode(t, rr, &raw)
	if _, ok := raw["engines"].([]interface{}); !ok {
		t.Errorf("engines = %#v, want []", raw["engines"])
	}
}

// --- /api/v1/engines/{engine} -----------------------------------------------

func TestGetEngine(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/engines/mongodb", http.StatusOK},
		{"/api/v1/engines/postgres", http.StatusOK},
		{"/api/v1/engines/mssql", http.StatusNotFound},
		{"/api/v1/engines/oracle", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if rr := get(t, h, tc.path); rr.Code != tc.code {
			t.Errorf("%s: got %d, want %d", tc.path, rr.Code, tc.code)
		}
	}

	var es types.EngineSnapshot
	decode(t, get(t, h, "/api/v1/engines/mongodb"), &es)
	if es.Engine != types.EngineMongoDB || es.Counts.Critical != 1 {
		t.Errorf("engine = %+v", es)
	}
}

// --- /api/v1/sources --------------------------------------------------------

func TestSources_StatusAndDiagnostics(t *testing.T) {
	failing := result("mssql-a", types.EngineMSSQL, node(types.EngineMSSQL, "ag1", "s1", types.StatusHealthy))
	failing.LastOutcome = types.SourceFailed
	failing.Stale = true
	failing.Failures = 1
	failing.LastError = "connection refused"
	st, reg := fixture(result("mongo-a", types.EngineMongoDB, node(types.EngineMongoDB, "rs0", "m1", types.StatusHealthy)), failing)

	var resp []api.SourceResponse
	decode(t, get(t, api.New(st, reg, nil), "/api/v1/sources"), &resp)
	if len(resp) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp))
	}
	if resp[0].SourceID != "mongo-a" || resp[0].Diagnostics[0].Key != "healthy" {
		t.Errorf("mongo-a = %+v", resp[0])
	}
	if resp[1].NodeCount != 1 || !resp[1].Stale || resp[1].LastOutcome != types.SourceFailed || resp[1].Diagnostics[0].Key != "fetch_failed" {
		t.Errorf("mssql-a = %+v", resp[1])
	}
}

// --- /api/v1/alarms ---------------------------------------------------------

func TestAlarms_ListAndGet(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)

	var list []api.AlarmResponse
	decode(t, get(t, h, "/api/v1/alarms"), &list)
	if len(list) != 3 || list[0].Key != "mongodb/rs0/m1" || !list[0].AlertEnabled {
		t.Errorf("list = %+v", list)
	}

	var one api.AlarmResponse
	decode(t, get(t, h, "/api/v1/alarms/postgresql/pg-main/p1"), &one)
	if one.Key != "postgresql/pg-main/p1" || one.Suppressed {
		t.Errorf("one = %+v", one)
	}

	if rr := get(t, h, "/api/v1/alarms/mongodb/rs0/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown key: got %d, want 404", rr.Code)
	}
}

func TestAlarms_SilenceForThenEnable(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)

	rr := put(t, h, "/api/v1/alarms/mongodb/rs0/m2", `{"alert_enabled":false,"silence_for":"2h"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT: got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp api.AlarmResponse
	decode(t, rr, &resp)
	if resp.AlertEnabled || !resp.Suppressed || resp.SilenceUntil == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if d := time.Until(*resp.SilenceUntil); d < time.Hour || d > 2*time.Hour+time.Minute {
		t.Errorf("silence_until %v not ~2h ahead", resp.SilenceUntil)
	}

	var snap api.SnapshotResponse
	decode(t, get(t, h, "/api/v1/snapshot"), &snap)
	if !snap.Suppressed["mongodb/rs0/m2"] {
		t.Error("snapshot does not report m2 as suppressed")
	}

	rr = put(t, h, "/api/v1/alarms/mongodb/rs0/m2", `{"alert_enabled":true}`)
	decode(t, rr, &resp)
	if !resp.AlertEnabled || resp.Suppressed || resp.SilenceUntil != nil {
		t.Errorf("after enable: %+v", resp)
	}
}

func TestAlarms_IndefiniteSilence(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)

	var resp api.AlarmResponse
	decode(t, put(t, h, "/api/v1/alarms/mongodb/rs0/m1", `{"alert_enabled":false}`), &resp)
	if !resp.Suppressed || resp.SilenceUntil != nil {
		t.Errorf("resp = %+v, want suppressed without deadline", resp)
	}
}

func TestAlarms_PutRejectsBadRequests(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown key", "/api/v1/alarms/mongodb/rs0/zz", `{"alert_enabled":false}`, http.StatusNotFound},
		{"missing flag", "/api/v1/alarms/mongodb/rs0/m1", `{}`, http.StatusBadRequest},
		{"not json", "/api/v1/alarms/mongodb/rs0/m1", `silence`, http.StatusBadRequest},
		{"unknown field", "/api/v1/alarms/mongodb/rs0/m1", `{"alert_enabled":false,"mute":true}`, http.StatusBadRequest},
		{"bad duration", "/api/v1/alarms/mongodb/rs0/m1", `{"alert_enabled":false,"silence_for":"soon"}`, http.StatusBadRequest},
		{"negative duration", "/api/v1/alarms/mongodb/rs0/m1", `{"alert_enabled":false,"silence_for":"-1h"}`, http.StatusBadRequest},
		{"past deadline", "/api/v1/alarms/mongodb/rs0/m1", `{"alert_enabled":false,"silence_until":"` + past + `"}`, http.StatusBadRequest},
		{"both bounds", "/api/v1/alarms/mongodb/rs0/m1", `{"alert_enabled":false,"silence_for":"1h","silence_until":"` + future + `"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rr := put(t, h, tc.path, tc.body); rr.Code != tc.code {
				t.Errorf("got %d, want %d (%s)", rr.Code, tc.code, rr.Body.String())
			}
		})
	}
}

func TestAlarms_SilenceUntil(t *testing.T) {
	st, reg := defaultFixture()
	h := api.New(st, reg, nil)
	until := time.Now().Add(3 * time.Hour).UTC().Truncate(time.Second)

	var resp api.AlarmResponse
	decode(t, put(t, h, "/api/v1/alarms/mongodb/rs0/m1",
		`{"alert_enabled":false,"silence_until":"`+until.Format(time.RFC3339)+`"}`), &resp)
	if resp.SilenceUntil == nil || !resp.SilenceUntil.Equal(until) {
		t.Errorf("silence_until = %v, want %v", resp.SilenceUntil, until)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_NilNotifierIsEmpty(t *testing.T) {
	st, reg := fixture()
	var out []alarm.Alarm
	decode(t, get(t, api.New(st, reg, nil), "/api/v1/alerts"), &out)
	if len(out) != 0 {
		t.Errorf("alerts = %d, want 0", len(out))
	}
}

func TestAlerts_ListsFiring(t *testing.T) {
	st, reg := defaultFixture()
	n := alarm.NewNotifier(config.AlarmsConfig{MinSeverity: "critical"}, reg)
	n.Evaluate(st.Snapshot().Nodes())
	n.Wait()

	var out []alarm.Alarm
	decode(t, get(t, api.New(st, reg, n), "/api/v1/alerts"), &out)
	if len(out) != 1 || out[0].Key != "mongodb/rs0/m2" || out[0].State != alarm.StateFiring {
		t.Errorf("alerts = %+v", out)
	}

	var health api.HealthResponse
	decode(t, get(t, api.New(st, reg, n), "/api/v1/health"), &health)
	if health.AlertCount != 1 {
		t.Errorf("alert_count = %d, want 1", health.AlertCount)
	}
}
