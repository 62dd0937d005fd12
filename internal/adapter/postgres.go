package adapter

import (
	"strings"

	"github.com/dbfleet/dbfleet/pkg/types"
)

func adaptPostgres(raw map[string]any, clusterHint string) types.NodeRecord {
	n := types.NodeRecord{
		Engine:    types.EnginePostgreSQL,
		Name:      str(raw, "Hostname", "nodename"),
		ClusterID: firstNonEmpty(str(raw, "ClusterName"), clusterHint),
		Role:      normalizeRole(str(raw, "NodeStatus", "status")),
		Service:   pgService(str(raw, "PGServiceStatus")),
		Location:  str(raw, "DC", "Location"),
		IP:        str(raw, "IP", "ip"),
		Version:   str(raw, "PGVersion", "Version"),
	}
	applyDisk(&n, raw,
		[]string{"FDPercent", "freediskpercent"},
		[]string{"FreeDisk", "freediskdata"})
	setAttr(&n, "pgbouncer_status", str(raw, "PGBouncerStatus"))
	setAttr(&n, "replication_lag_sec", str(raw, "ReplicationLagSec"))
	setAttr(&n, "total_disk", str(raw, "TotalDisk"))
	return n
}

// pgService is stricter than serviceState: the PostgreSQL agent only ever
// reports RUNNING for a live postmaster.
func pgService(s string) types.ServiceState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return types.ServiceUnknown
	case "RUNNING":
		return types.ServiceRunning
	default:
		return types.ServiceStopped
	}
}
