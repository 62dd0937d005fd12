package compute

import (
	"sort"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// UnknownCluster is the group id for nodes that carry no cluster identity.
// Adapters drop such records, so this only catches hand-built input.
const UnknownCluster = "Unknown"

// Aggregate groups classified nodes by (engine, cluster). Each group's status
// is its worst member's status.
func Aggregate(nodes []types.NodeHealth) []types.ClusterGroup {
	type groupKey struct {
		engine types.Engine
		id     string
	}
	index := make(map[groupKey]int)
	var groups []types.ClusterGroup

	for _, n := range nodes {
		id := n.ClusterID
		if id == "" {
			id = UnknownCluster
		}
		k := groupKey{engine: n.Engine, id: id}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, types.ClusterGroup{
				ID:     id,
				Engine: n.Engine,
				Status: types.StatusHealthy,
			})
		}
		g := &groups[i]
		g.Members = append(g.Members, n)
		g.Counts.Add(n.Status)
		g.Status = types.Worse(g.Status, n.Status)
	}

	for i := range groups {
		g := &groups[i]
		g.Priority = g.Status.Priority()
		sort.SliceStable(g.Members, func(a, b int) bool {
			ma, mb := g.Members[a], g.Members[b]
			if ma.Priority != mb.Priority {
				return ma.Priority < mb.Priority
			}
			return ma.Name < mb.Name
		})
	}

	sort.SliceStable(groups, func(a, b int) bool {
		ga, gb := groups[a], groups[b]
		if ga.Priority != gb.Priority {
			return ga.Priority < gb.Priority
		}
		if ga.ID != gb.ID {
			return ga.ID < gb.ID
		}
		return ga.Engine < gb.Engine
	})
	return groups
}

// Summarize returns node counts and cluster counts over groups.
func Summarize(groups []types.ClusterGroup) (nodes, clusters types.Counts) {
	for _, g := range groups {
		nodes.Merge(g.Counts)
		clusters.Add(g.Status)
	}
	return nodes, clusters
}
