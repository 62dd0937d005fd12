package adapter

import (
	"fmt"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// adaptMSSQLRows groups flat AlwaysOn rows (one per listener, node and drive)
// into one record per node. Nodes keep the order in which their first row was
// seen; drives keep row order.
func adaptMSSQLRows(items []any) Result {
	var (
		res   Result
		order []string
		nodes = make(map[string]*types.NodeRecord)
	)
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			res.Dropped = append(res.Dropped, Drop{
				Reason: fmt.Sprintf("row %d is %T, want object", i, item),
			})
			continue
		}
		n := mssqlNode(row, "")
		if err := checkIdentity(n); err != nil {
			res.Dropped = append(res.Dropped, Drop{Cluster: n.ClusterID, Reason: err.Error()})
			continue
		}
		key := n.ClusterID + "\x00" + n.Name
		existing, ok := nodes[key]
		if !ok {
			existing = &n
			nodes[key] = existing
			order = append(order, key)
		}
		addDrive(existing, row)
	}

	for _, key := range order {
		n := nodes[key]
		pickWorstDrive(n)
		res.Records = append(res.Records, *n)
	}
	return res
}

func mssqlNode(row map[string]any, clusterHint string) types.NodeRecord {
	n := types.NodeRecord{
		Engine:    types.EngineMSSQL,
		Name:      str(row, "node_name", "replica_server_name"),
		ClusterID: firstNonEmpty(str(row, "listener_name", "ag_name"), clusterHint),
		Role:      normalizeRole(str(row, "node_status", "role_desc")),
		Service:   serviceState(str(row, "service_status")),
		Location:  str(row, "location", "dc"),
		IP:        str(row, "ip", "ip_address"),
		Version:   str(row, "version"),
	}
	setAttr(&n, "ag_status", str(row, "ag_status"))
	setAttr(&n, "synchronization_health", str(row, "synchronization_health"))
	return n
}

// addDrive appends the drive carried by row, if any. A missing percentage is
// derived from free and total space when both are present.
func addDrive(n *types.NodeRecord, row map[string]any) {
	letter := str(row, "drive_letter", "volume_mount_point")
	if letter == "" {
		return
	}
	d := types.Drive{Letter: letter}
	d.FreeGB, _ = num(row, "free_space_gb")
	d.TotalGB, _ = num(row, "total_space_gb")
	if pct, ok := num(row, "free_percentage"); ok {
		d.FreePercent = pct
	} else if d.TotalGB > 0 {
		d.FreePercent = d.FreeGB / d.TotalGB * 100
	} else {
		// Neither figure is known; keep the drive listed but out of the disk rule.
		d.FreePercent = -1
	}
	n.Drives = append(n.Drives, d)
}

// pickWorstDrive sets the node's summary disk figures from the drive with the
// lowest free percentage. Ties keep the first drive. The classifier still
// checks every drive, since another drive may be lower in absolute space.
func pickWorstDrive(n *types.NodeRecord) {
	worst := -1
	for i, d := range n.Drives {
		if d.FreePercent < 0 {
			continue
		}
		if worst < 0 || d.FreePercent < n.Drives[worst].FreePercent {
			worst = i
		}
	}
	if worst < 0 {
		return
	}
	n.DiskReported = true
	n.FreeDiskPercent = n.Drives[worst].FreePercent
	n.FreeDiskGB = n.Drives[worst].FreeGB
}
