package adapter

import (
	"strconv"
	"strings"

	"github.com/dbfleet/dbfleet/internal/units"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// Cassandra reports no free-disk figures, so DiskReported stays false and the
// disk rule never applies. Load is kept as an attribute.
func adaptCassandra(raw map[string]any, clusterHint string) types.NodeRecord {
	token := str(raw, "Status")
	svc, role := cassandraStatus(token)

	location := str(raw, "Datacenter", "DC")
	if rack := str(raw, "Rack"); rack != "" {
		if location != "" {
			location += "/" + rack
		} else {
			location = rack
		}
	}

	n := types.NodeRecord{
		Engine:    types.EngineCassandra,
		Name:      str(raw, "Hostname", "Address"),
		ClusterID: firstNonEmpty(str(raw, "ClusterName"), clusterHint),
		Role:      role,
		Service:   svc,
		Location:  location,
		IP:        str(raw, "Address", "IP"),
		Version:   str(raw, "ReleaseVersion", "Version"),
	}
	setAttr(&n, "status", strings.ToUpper(token))
	setAttr(&n, "load", str(raw, "Load"))
	if gb, ok := units.ParseSize(str(raw, "Load")); ok {
		setAttr(&n, "load_gb", strconv.FormatFloat(gb, 'f', 2, 64))
	}
	setAttr(&n, "tokens", str(raw, "Tokens"))
	setAttr(&n, "owns", str(raw, "Owns"))
	setAttr(&n, "rack", str(raw, "Rack"))
	setAttr(&n, "host_id", str(raw, "HostID", "Host ID"))
	return n
}

// cassandraStatus splits a nodetool status token such as "UN" or "DL". The
// first letter is Up/Down, the second Normal/Leaving/Joining/Moving.
func cassandraStatus(token string) (types.ServiceState, string) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if len(token) != 2 {
		return types.ServiceUnknown, "UNKNOWN"
	}

	svc := types.ServiceUnknown
	switch token[0] {
	case 'U':
		svc = types.ServiceRunning
	case 'D':
		svc = types.ServiceStopped
	}

	role := "UNKNOWN"
	switch token[1] {
	case 'N':
		role = "NORMAL"
	case 'L':
		role = "LEAVING"
	case 'J':
		role = "JOINING"
	case 'M':
		role = "MOVING"
	}
	return svc, role
}
