package types

import (
	"fmt"
	"strings"
	"time"
)

// Engine identifies the database engine a node belongs to.
type Engine string

const (
	EngineMongoDB    Engine = "mongodb"
	EnginePostgreSQL Engine = "postgresql"
	EngineCassandra  Engine = "cassandra"
	EngineMSSQL      Engine = "mssql"
)

// Engines returns every supported engine in display order.
func Engines() []Engine {
	return []Engine{EngineMongoDB, EnginePostgreSQL, EngineCassandra, EngineMSSQL}
}

// ParseEngine accepts the canonical names plus the common aliases used in
// source configs ("mongo", "postgres", "pg", "sqlserver").
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mongodb", "mongo":
		return EngineMongoDB, nil
	case "postgresql", "postgres", "pg":
		return EnginePostgreSQL, nil
	case "cassandra":
		return EngineCassandra, nil
	case "mssql", "sqlserver":
		return EngineMSSQL, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// ServiceState reports whether the engine's service process is running.
// Engines that do not report it leave the zero value, ServiceUnknown.
type ServiceState int8

const (
	ServiceUnknown ServiceState = iota
	ServiceRunning
	ServiceStopped
)

func (s ServiceState) String() string {
	switch s {
	case ServiceRunning:
		return "running"
	case ServiceStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its lowercase name.
func (s ServiceState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses the lowercase name; anything unrecognised is unknown.
func (s *ServiceState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "running":
		*s = ServiceRunning
	case "stopped":
		*s = ServiceStopped
	default:
		*s = ServiceUnknown
	}
	return nil
}

// Drive is one SQL Server volume reported for a node.
type Drive struct {
	Letter      string  `json:"letter"`
	FreeGB      float64 `json:"free_gb"`
	TotalGB     float64 `json:"total_gb"`
	FreePercent float64 `json:"free_percent"`
}

// NodeRecord is the canonical, engine-agnostic view of one database node.
// Records are rebuilt every poll cycle and never mutated in place.
type NodeRecord struct {
	Name      string       `json:"name"`
	ClusterID string       `json:"cluster_id"`
	Engine    Engine       `json:"engine"`
	Role      string       `json:"role"`
	Service   ServiceState `json:"service"`
	Location  string       `json:"location,omitempty"`
	IP        string       `json:"ip,omitempty"`
	Version   string       `json:"version,omitempty"`

	// DiskReported is false for engines that carry no free-disk data
	// (Cassandra). The disk rule is skipped for such nodes.
	DiskReported    bool    `json:"disk_reported"`
	FreeDiskPercent float64 `json:"free_disk_percent"`
	FreeDiskGB      float64 `json:"free_disk_gb"`

	Drives     []Drive           `json:"drives,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Key returns the fully-qualified node name used to key alarm state.
func (n NodeRecord) Key() string {
	return NodeKey(n.Engine, n.ClusterID, n.Name)
}

// NodeKey builds the fully-qualified node name "engine/cluster/name".
func NodeKey(engine Engine, cluster, name string) string {
	return string(engine) + "/" + cluster + "/" + name
}

// HealthStatus is the tri-state severity of a node or cluster.
// Lower values are worse.
type HealthStatus int

const (
	StatusCritical HealthStatus = 1
	StatusWarning  HealthStatus = 2
	StatusHealthy  HealthStatus = 3
)

// Priority is the sort key for the status: ascending means most severe first.
func (s HealthStatus) Priority() int { return int(s) }

func (s HealthStatus) String() string {
	switch s {
	case StatusCritical:
		return "critical"
	case StatusWarning:
		return "warning"
	case StatusHealthy:
		return "healthy"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as its lowercase name.
func (s HealthStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a lowercase status name.
func (s *HealthStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "critical":
		*s = StatusCritical
	case "warning":
		*s = StatusWarning
	case "healthy":
		*s = StatusHealthy
	default:
		return fmt.Errorf("unknown health status %q", string(b))
	}
	return nil
}

// Worse returns whichever of a and b is more severe.
func Worse(a, b HealthStatus) HealthStatus {
	if b < a {
		return b
	}
	return a
}

// NodeHealth is a NodeRecord together with its classification.
type NodeHealth struct {
	NodeRecord
	Status   HealthStatus `json:"status"`
	Priority int          `json:"priority"`
	Reason   string       `json:"reason"`
}

// Counts tallies entries per health status.
type Counts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Healthy  int `json:"healthy"`
}

// Add increments the counter for s.
func (c *Counts) Add(s HealthStatus) {
	switch s {
	case StatusCritical:
		c.Critical++
	case StatusWarning:
		c.Warning++
	case StatusHealthy:
		c.Healthy++
	}
}

// Merge adds every counter of o into c.
func (c *Counts) Merge(o Counts) {
	c.Critical += o.Critical
	c.Warning += o.Warning
	c.Healthy += o.Healthy
}

// Total returns the number of counted entries.
func (c Counts) Total() int { return c.Critical + c.Warning + c.Healthy }

// ClusterGroup is one cluster / replica set / listener and its members.
type ClusterGroup struct {
	ID       string       `json:"id"`
	Engine   Engine       `json:"engine"`
	Status   HealthStatus `json:"status"`
	Priority int          `json:"priority"`
	Counts   Counts       `json:"counts"`
	Members  []NodeHealth `json:"members"`
}

// SourceState is the poll state machine position of one telemetry source.
type SourceState string

const (
	SourceIdle      SourceState = "idle"
	SourceFetching  SourceState = "fetching"
	SourceSucceeded SourceState = "succeeded"
	SourceFailed    SourceState = "failed"
)

// CertStatus describes the TLS leaf certificate of an https source endpoint.
type CertStatus struct {
	Endpoint  string    `json:"endpoint"`
	Status    string    `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft  int       `json:"days_left"`
	Issuer    string    `json:"issuer,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// SourceResult is the outcome of the latest poll of one source. When a fetch
// fails the previous Nodes are carried over and Stale is set; once the source
// is Degraded, Nodes is empty and the engine's contribution is unknown.
type SourceResult struct {
	SourceID    string       `json:"source_id"`
	Engine      Engine       `json:"engine"`
	State       SourceState  `json:"state"`
	// LastOutcome is succeeded or failed for the latest completed fetch; State
	// is back to idle between cycles. Empty until the first fetch completes.
	LastOutcome SourceState  `json:"last_outcome,omitempty"`
	Nodes       []NodeHealth `json:"-"`
	Dropped     int          `json:"dropped"`
	Failures    int          `json:"consecutive_failures"`
	Stale       bool         `json:"stale"`
	Degraded    bool         `json:"degraded"`
	LastError   string       `json:"last_error,omitempty"`
	ShapeError  string       `json:"shape_error,omitempty"`
	LastAttempt time.Time    `json:"last_attempt"`
	LastSuccess time.Time    `json:"last_success,omitempty"`
	UptimePct   float64      `json:"uptime_pct"`
	Cert        *CertStatus  `json:"cert,omitempty"`
}

// EngineSnapshot is the merged view of every source of one engine.
type EngineSnapshot struct {
	Engine        Engine         `json:"engine"`
	Clusters      []ClusterGroup `json:"clusters"`
	Counts        Counts         `json:"counts"`
	ClusterCounts Counts         `json:"cluster_counts"`
	Sources       []SourceResult `json:"sources"`
	Stale         bool           `json:"stale"`
	Degraded      bool           `json:"degraded"`
}

// Snapshot is the immutable aggregate published after each poll cycle.
type Snapshot struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	Engines       []EngineSnapshot `json:"engines"`
	Counts        Counts           `json:"counts"`
	ClusterCounts Counts           `json:"cluster_counts"`
}

// Engine returns the snapshot of engine e, if present.
func (s Snapshot) Engine(e Engine) (EngineSnapshot, bool) {
	for _, es := range s.Engines {
		if es.Engine == e {
			return es, true
		}
	}
	return EngineSnapshot{}, false
}

// Nodes returns every classified node across all engines, in snapshot order.
func (s Snapshot) Nodes() []NodeHealth {
	var out []NodeHealth
	for _, es := range s.Engines {
		for _, cg := range es.Clusters {
			out = append(out, cg.Members...)
		}
	}
	return out
}

// AlarmState is the operator-controlled alerting state of one node.
type AlarmState struct {
	AlertEnabled bool       `json:"alert_enabled"`
	SilenceUntil *time.Time `json:"silence_until,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
