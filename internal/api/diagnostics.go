package api

import (
	"fmt"
	"sort"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// DiagnosticHint is one human-readable insight about a source's polling.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a source result, most severe first.
func computeDiagnostics(res types.SourceResult) []DiagnosticHint {
	var hints []DiagnosticHint

	if res.LastOutcome == "" && res.LastSuccess.IsZero() && res.State != types.SourceFailed {
		return []DiagnosticHint{{
			Key:    "warming_up",
			Level:  "info",
			Title:  "Waiting for first poll",
			Detail: "This source has not been polled yet. Its nodes appear after the first successful fetch.",
		}}
	}

	switch {
	case res.Degraded:
		v := float64(res.Failures)
		hints = append(hints, DiagnosticHint{
			Key:   "degraded",
			Level: "critical",
			Title: "Source degraded",
			Detail: fmt.Sprintf(
				"The last %d fetches failed (latest error: %q). The nodes of this source are no "+
					"longer shown and their health is unknown until a fetch succeeds again.",
				res.Failures, res.LastError),
			Value: &v,
		})
	case res.Stale:
		v := float64(res.Failures)
		hints = append(hints, DiagnosticHint{
			Key:   "fetch_failed",
			Level: "warning",
			Title: "Showing last known data",
			Detail: fmt.Sprintf(
				"The last fetch failed (%q). The nodes shown are from the previous successful "+
					"poll and may be out of date.", res.LastError),
			Value: &v,
		})
	}

	if res.ShapeError != "" {
		hints = append(hints, DiagnosticHint{
			Key:   "shape_error",
			Level: "warning",
			Title: "Unexpected payload",
			Detail: fmt.Sprintf(
				"The source answered, but the payload could not be read (%s). It contributes no "+
					"nodes until the payload is fixed.", res.ShapeError),
		})
	}

	if res.Dropped > 0 {
		v := float64(res.Dropped)
		hints = append(hints, DiagnosticHint{
			Key:   "dropped_records",
			Level: "warning",
			Title: fmt.Sprintf("%d records skipped", res.Dropped),
			Detail: "Some node records were missing a name or cluster, or were not objects, and " +
				"were left out. See the server log for each skipped record.",
			Value: &v,
		})
	}

	if res.UptimePct < 100 {
		v := res.UptimePct
		level := "info"
		switch {
		case res.UptimePct < 70:
			level = "critical"
		case res.UptimePct < 90:
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "uptime",
			Level: level,
			Title: fmt.Sprintf("%.0f%% fetch success", res.UptimePct),
			Detail: fmt.Sprintf(
				"%.0f%% of the last fetches succeeded. A brief dip is often a collaborator restart; "+
					"a sustained dip points at network or credential problems.", res.UptimePct),
			Value: &v,
		})
	}

	if c := res.Cert; c != nil {
		v := float64(c.DaysLeft)
		switch c.Status {
		case "expired":
			hints = append(hints, DiagnosticHint{
				Key: "cert_expired", Level: "critical", Title: "Certificate expired", Value: &v,
				Detail: fmt.Sprintf("The TLS certificate of %s expired on %s.", c.Endpoint, c.NotAfter.Format("2006-01-02")),
			})
		case "expiring":
			hints = append(hints, DiagnosticHint{
				Key: "cert_expiring", Level: "warning", Title: fmt.Sprintf("Certificate expires in %dd", c.DaysLeft), Value: &v,
				Detail: fmt.Sprintf("The TLS certificate of %s expires on %s. Renew it before polling breaks.", c.Endpoint, c.NotAfter.Format("2006-01-02")),
			})
		case "unreachable":
			hints = append(hints, DiagnosticHint{
				Key: "cert_unreachable", Level: "info", Title: "Certificate not checked",
				Detail: fmt.Sprintf("The TLS handshake with %s failed, so its certificate could not be inspected.", c.Endpoint),
			})
		}
	}

	if len(hints) == 0 {
		return []DiagnosticHint{{
			Key:    "healthy",
			Level:  "ok",
			Title:  "All clear",
			Detail: "The last fetch succeeded and every record was read.",
		}}
	}

	sortHints(hints)
	return hints
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// sortHints orders hints critical first, keeping insertion order within a level.
func sortHints(hints []DiagnosticHint) {
	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
}
