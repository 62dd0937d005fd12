package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/dbfleet/dbfleet/internal/alarm"
	"github.com/dbfleet/dbfleet/internal/api"
	"github.com/dbfleet/dbfleet/internal/store"
	"github.com/dbfleet/dbfleet/pkg/types"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

// startServer serves the real REST API over a store with one mongodb source.
func startServer(t *testing.T) (*httptest.Server, *alarm.Registry) {
	t.Helper()

	st := store.New(time.Minute)
	st.Put(types.SourceResult{
		SourceID:    "mongo-a",
		Engine:      types.EngineMongoDB,
		State:       types.SourceIdle,
		LastOutcome: types.SourceSucceeded,
		Nodes: []types.NodeHealth{
			{
				NodeRecord: types.NodeRecord{Engine: types.EngineMongoDB, ClusterID: "rs0", Name: "m1", Role: "PRIMARY",
					Service: types.ServiceRunning, DiskReported: true, FreeDiskPercent: 12, FreeDiskGB: 40},
				Status: types.StatusWarning,
				Reason: "free disk low",
			},
			{
				NodeRecord: types.NodeRecord{Engine: types.EngineMongoDB, ClusterID: "rs0", Name: "m2", Role: "SECONDARY",
					Service: types.ServiceRunning},
				Status: types.StatusHealthy,
			},
		},
		LastAttempt: time.Now(),
		LastSuccess: time.Now(),
		UptimePct:   100,
	})
	snap := st.Publish()

	reg := alarm.NewRegistry(nil)
	var keys []string
	for _, n := range snap.Nodes() {
		keys = append(keys, n.Key())
	}
	reg.Observe(keys)

	srv := httptest.NewServer(api.New(st, reg, nil))
	t.Cleanup(srv.Close)
	return srv, reg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// --- read commands ----------------------------------------------------------

func TestSnapshotCmd_Table(t *testing.T) {
	srv, _ := startServer(t)

	out, err := execute(t, "--server", srv.URL, "snapshot")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, want := range []string{"m1", "m2", "rs0", "warning", "12.0% / 40 GB", "0 critical, 1 warning, 1 healthy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestSnapshotCmd_EngineFilter(t *testing.T) {
	srv, _ := startServer(t)

	out, err := execute(t, "--server", srv.URL, "snapshot", "--engine", "cassandra", "--json")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var snap api.SnapshotResponse
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(snap.Engines) != 0 {
		t.Errorf("engines = %d, want 0 after filtering", len(snap.Engines))
	}

	if _, err := execute(t, "--server", srv.URL, "snapshot", "--engine", "oracle"); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestHealthCmd(t *testing.T) {
	srv, _ := startServer(t)

	out, err := execute(t, "--server", srv.URL, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, "state:     warning") || !strings.Contains(out, "sources:   1") {
		t.Errorf("output:\n%s", out)
	}
}

func TestSourcesCmd(t *testing.T) {
	srv, _ := startServer(t)

	out, err := execute(t, "--server", srv.URL, "sources")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if !strings.Contains(out, "mongo-a") || !strings.Contains(out, "succeeded") || !strings.Contains(out, "100%") {
		t.Errorf("output:\n%s", out)
	}
}

// --- silence round trip -----------------------------------------------------

func TestSilenceAndUnsilence(t *testing.T) {
	srv, reg := startServer(t)

	out, err := execute(t, "--server", srv.URL, "silence", "mongodb/rs0/m1", "--for", "90m")
	if err != nil {
		t.Fatalf("silence: %v", err)
	}
	if !strings.Contains(out, "mongodb/rs0/m1: silenced until") {
		t.Errorf("output: %q", out)
	}
	if !reg.Suppressed("mongodb/rs0/m1", time.Now()) {
		t.Fatal("registry does not report m1 as suppressed")
	}

	out, err = execute(t, "--server", srv.URL, "alarms", "--silenced")
	if err != nil {
		t.Fatalf("alarms: %v", err)
	}
	if !strings.Contains(out, "mongodb/rs0/m1") || strings.Contains(out, "mongodb/rs0/m2") {
		t.Errorf("silenced alarms:\n%s", out)
	}

	out, err = execute(t, "--server", srv.URL, "unsilence", "mongodb/rs0/m1")
	if err != nil {
		t.Fatalf("unsilence: %v", err)
	}
	if !strings.Contains(out, "alerts enabled") {
		t.Errorf("output: %q", out)
	}
	if reg.Suppressed("mongodb/rs0/m1", time.Now()) {
		t.Error("m1 still suppressed after unsilence")
	}
}

func TestSilenceCmd_Indefinite(t *testing.T) {
	srv, reg := startServer(t)

	out, err := execute(t, "--server", srv.URL, "silence", "mongodb/rs0/m2")
	if err != nil {
		t.Fatalf("silence: %v", err)
	}
	if !strings.Contains(out, "silenced indefinitely") {
		t.Errorf("output: %q", out)
	}
	st, _ := reg.Get("mongodb/rs0/m2")
	if st.AlertEnabled || st.SilenceUntil != nil {
		t.Errorf("state = %+v", st)
	}
}

func TestSilenceCmd_Errors(t *testing.T) {
	srv, _ := startServer(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown node", []string{"silence", "mongodb/rs0/zz"}, "unknown node key"},
		{"bad until", []string{"silence", "mongodb/rs0/m1", "--until", "tomorrow"}, "--until"},
		{"both bounds", []string{"silence", "mongodb/rs0/m1", "--for", "1h", "--until", "2030-01-01T00:00:00Z"}, "none of the others"},
		{"missing key", []string{"silence"}, "accepts 1 arg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--server", srv.URL}, tc.args...)...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestAlarmPath_EscapesSegments(t *testing.T) {
	if got := alarmPath("mssql/ag 1/sql-01"); got != "/api/v1/alarms/mssql/ag%201/sql-01" {
		t.Errorf("alarmPath = %q", got)
	}
}
