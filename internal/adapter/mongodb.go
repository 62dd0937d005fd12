package adapter

import "github.com/dbfleet/dbfleet/pkg/types"

// adaptMongo maps one replica-set member. MongoDB agents report the host as
// "nodename" and only newer ones add "Hostname"; the older field wins.
func adaptMongo(raw map[string]any, clusterHint string) types.NodeRecord {
	n := types.NodeRecord{
		Engine:    types.EngineMongoDB,
		Name:      str(raw, "nodename", "Hostname", "host"),
		ClusterID: firstNonEmpty(str(raw, "replsetname", "ClusterName"), clusterHint),
		Role:      normalizeRole(str(raw, "status", "stateStr", "NodeStatus")),
		Service:   serviceState(str(raw, "ServiceStatus", "MongoStatus")),
		Location:  str(raw, "dc", "Location"),
		IP:        str(raw, "ip", "IP"),
		Version:   str(raw, "version", "MongoVersion"),
	}
	applyDisk(&n, raw,
		[]string{"freediskpercent", "FDPercent"},
		[]string{"freediskdata", "FreeDisk"})
	setAttr(&n, "oplog_window", str(raw, "oplogwindow", "OplogWindow"))
	setAttr(&n, "replication_lag_sec", str(raw, "replicationlag", "ReplicationLagSec"))
	return n
}
