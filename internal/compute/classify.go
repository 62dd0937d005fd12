package compute

import (
	"fmt"
	"strings"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// Default disk thresholds. Both must be crossed for a WARNING.
const (
	DefaultDiskFreePercent = 25.0
	DefaultDiskFreeGB      = 200.0
)

// Thresholds configures the disk rule of the classifier.
type Thresholds struct {
	// DiskFreePercent is the free-space percentage below which a node may warn.
	DiskFreePercent float64 `yaml:"disk_free_percent"`

	// DiskFreeGB is the absolute free space, in GB, below which a node may warn.
	DiskFreeGB float64 `yaml:"disk_free_gb"`
}

// DefaultThresholds returns the canonical 25% / 200 GB thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{DiskFreePercent: DefaultDiskFreePercent, DiskFreeGB: DefaultDiskFreeGB}
}

// healthyRoles is shared by every engine; engineRoles adds engine-specific
// roles on top.
var (
	healthyRoles = map[string]bool{
		"PRIMARY":   true,
		"MASTER":    true,
		"SECONDARY": true,
		"SLAVE":     true,
	}
	engineRoles = map[types.Engine]map[string]bool{
		types.EngineMongoDB:   {"ARBITER": true},
		types.EngineCassandra: {"NORMAL": true},
	}
)

// HealthyRole reports whether role is acceptable for a node of engine e.
func HealthyRole(e types.Engine, role string) bool {
	role = strings.ToUpper(strings.TrimSpace(role))
	return healthyRoles[role] || engineRoles[e][role]
}

// Classify derives the health status of n and a short human-readable reason.
func Classify(n types.NodeRecord, th Thresholds) (types.HealthStatus, string) {
	if n.Service == types.ServiceStopped {
		return types.StatusCritical, "service not running"
	}
	if !HealthyRole(n.Engine, n.Role) {
		return types.StatusCritical, fmt.Sprintf("role %s is not a healthy %s role", n.Role, n.Engine)
	}
	if reason, low := lowDisk(n, th); low {
		return types.StatusWarning, reason
	}
	return types.StatusHealthy, ""
}

// lowDisk applies the disk rule. A node that lists drives warns when any one
// drive is below both thresholds; the node-level figures are used otherwise.
func lowDisk(n types.NodeRecord, th Thresholds) (string, bool) {
	if !n.DiskReported {
		return "", false
	}
	below := func(pct, gb float64) bool { return pct < th.DiskFreePercent && gb < th.DiskFreeGB }

	if len(n.Drives) > 0 {
		for _, d := range n.Drives {
			if d.FreePercent < 0 {
				continue
			}
			if below(d.FreePercent, d.FreeGB) {
				return fmt.Sprintf("drive %s free %.1f%% / %.1f GB below %.0f%% / %.0f GB",
					d.Letter, d.FreePercent, d.FreeGB, th.DiskFreePercent, th.DiskFreeGB), true
			}
		}
		return "", false
	}
	if below(n.FreeDiskPercent, n.FreeDiskGB) {
		return fmt.Sprintf("free disk %.1f%% / %.1f GB below %.0f%% / %.0f GB",
			n.FreeDiskPercent, n.FreeDiskGB, th.DiskFreePercent, th.DiskFreeGB), true
	}
	return "", false
}

// Evaluate classifies every record. The output has the same order as nodes.
func Evaluate(nodes []types.NodeRecord, th Thresholds) []types.NodeHealth {
	out := make([]types.NodeHealth, 0, len(nodes))
	for _, n := range nodes {
		status, reason := Classify(n, th)
		out = append(out, types.NodeHealth{
			NodeRecord: n,
			Status:     status,
			Priority:   status.Priority(),
			Reason:     reason,
		})
	}
	return out
}
