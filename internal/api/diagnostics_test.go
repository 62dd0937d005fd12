package api

import (
	"testing"
	"time"

	"github.com/dbfleet/dbfleet/pkg/types"
)

func keys(hints []DiagnosticHint) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = h.Key
	}
	return out
}

func TestComputeDiagnostics(t *testing.T) {
	polled := types.SourceResult{State: types.SourceIdle, LastOutcome: types.SourceSucceeded, LastAttempt: time.Now(), LastSuccess: time.Now(), UptimePct: 100}

	tests := []struct {
		name  string
		res   func() types.SourceResult
		first string
		level string
	}{
		{"idle", func() types.SourceResult { return types.SourceResult{State: types.SourceIdle, UptimePct: 100} }, "warming_up", "info"},
		{"first fetch in flight", func() types.SourceResult {
			return types.SourceResult{State: types.SourceFetching, LastAttempt: time.Now(), UptimePct: 100}
		}, "warming_up", "info"},
		{"first fetch failed", func() types.SourceResult {
			return types.SourceResult{State: types.SourceIdle, LastOutcome: types.SourceFailed, LastAttempt: time.Now(),
				Stale: true, Failures: 1, LastError: "timeout", UptimePct: 100}
		}, "fetch_failed", "warning"},
		{"all clear", func() types.SourceResult { return polled }, "healthy", "ok"},
		{"stale", func() types.SourceResult {
			r := polled
			r.Stale, r.Failures, r.LastError = true, 1, "timeout"
			return r
		}, "fetch_failed", "warning"},
		{"degraded wins over stale", func() types.SourceResult {
			r := polled
			r.Stale, r.Degraded, r.Failures = true, true, 3
			return r
		}, "degraded", "critical"},
		{"shape error", func() types.SourceResult {
			r := polled
			r.ShapeError = "payload is map"
			return r
		}, "shape_error", "warning"},
		{"low uptime sorts first", func() types.SourceResult {
			r := polled
			r.Dropped = 2
			r.UptimePct = 50
			return r
		}, "uptime", "critical"},
		{"expired cert", func() types.SourceResult {
			r := polled
			r.Cert = &types.CertStatus{Status: "expired", Endpoint: "https://t"}
			return r
		}, "cert_expired", "critical"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hints := computeDiagnostics(tc.res())
			if len(hints) == 0 {
				t.Fatal("no hints")
			}
			if hints[0].Key != tc.first || hints[0].Level != tc.level {
				t.Errorf("first hint = %s/%s, want %s/%s (all: %v)",
					hints[0].Key, hints[0].Level, tc.first, tc.level, keys(hints))
			}
		})
	}
}

func TestComputeDiagnostics_ValidCertAddsNothing(t *testing.T) {
	res := types.SourceResult{
		State: types.SourceIdle, LastOutcome: types.SourceSucceeded, LastAttempt: time.Now(), UptimePct: 100,
		Cert: &types.CertStatus{Status: "valid", DaysLeft: 200},
	}
	if hints := computeDiagnostics(res); len(hints) != 1 || hints[0].Key != "healthy" {
		t.Errorf("hints = %v", keys(hints))
	}
}
