package compute

import (
	"sort"
	"time"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// BuildSnapshot merges the latest result of every source into one Snapshot.
//
// Engines appear in types.Engines() order and only when at least one source
// feeds them. When two sources of the same engine report the same node key,
// the source with the lower id wins. results itself is not reordered.
func BuildSnapshot(results []types.SourceResult, now time.Time) types.Snapshot {
	byEngine := make(map[types.Engine][]types.SourceResult)
	for _, r := range results {
		byEngine[r.Engine] = append(byEngine[r.Engine], r)
	}

	snap := types.Snapshot{GeneratedAt: now}
	for _, e := range types.Engines() {
		srcs, ok := byEngine[e]
		if !ok {
			continue
		}
		es := buildEngine(e, srcs)
		snap.Counts.Merge(es.Counts)
		snap.ClusterCounts.Merge(es.ClusterCounts)
		snap.Engines = append(snap.Engines, es)
	}
	return snap
}

func buildEngine(e types.Engine, srcs []types.SourceResult) types.EngineSnapshot {
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].SourceID < srcs[j].SourceID })

	es := types.EngineSnapshot{Engine: e}
	seen := make(map[string]bool)
	var nodes []types.NodeHealth
	for _, r := range srcs {
		for _, n := range r.Nodes {
			k := n.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			nodes = append(nodes, n)
		}
		es.Stale = es.Stale || r.Stale
		es.Degraded = es.Degraded || r.Degraded

		r.Nodes = nil
		es.Sources = append(es.Sources, r)
	}

	es.Clusters = Aggregate(nodes)
	if es.Clusters == nil {
		es.Clusters = []types.ClusterGroup{}
	}
	es.Counts, es.ClusterCounts = Summarize(es.Clusters)
	return es
}
