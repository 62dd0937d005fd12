package api

import (
	"time"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is the worst node status, or "unknown" when no node is known.
	State            string    `json:"state"`
	SourceCount      int       `json:"source_count"`
	NodeCount        int       `json:"node_count"`
	ClusterCount     int       `json:"cluster_count"`
	CriticalCount    int       `json:"critical_count"`
	WarningCount     int       `json:"warning_count"`
	HealthyCount     int       `json:"healthy_count"`
	CriticalClusters int       `json:"critical_clusters"`
	AlertCount       int       `json:"alert_count"`
	SuppressedCount  int       `json:"suppressed_count"`
	StaleEngines     []string  `json:"stale_engines"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	GeneratedAt   time.Time              `json:"generated_at"`
	CriticalCount int                    `json:"critical_count"`
	WarningCount  int                    `json:"warning_count"`
	HealthyCount  int                    `json:"healthy_count"`
	ClusterCounts types.Counts           `json:"cluster_counts"`
	Engines       []types.EngineSnapshot `json:"engines"`

	// Suppressed maps every node key in Engines to whether its alarms are
	// currently silenced.
	Suppressed map[string]bool `json:"suppressed"`
}

// SourceResponse is one entry of GET /api/v1/sources.
type SourceResponse struct {
	types.SourceResult
	NodeCount   int              `json:"node_count"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// AlarmRequest is the body of PUT /api/v1/alarms/{key}.
//
// AlertEnabled is required. When it is false, SilenceUntil or SilenceFor
// bound the silence; with neither the silence is indefinite.
type AlarmRequest struct {
	AlertEnabled *bool      `json:"alert_enabled"`
	SilenceUntil *time.Time `json:"silence_until,omitempty"`
	SilenceFor   string     `json:"silence_for,omitempty"` // Go duration, e.g. "2h"
}

// AlarmResponse is one node's alarm state.
type AlarmResponse struct {
	Key          string     `json:"key"`
	AlertEnabled bool       `json:"alert_enabled"`
	SilenceUntil *time.Time `json:"silence_until,omitempty"`
	Suppressed   bool       `json:"suppressed"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
