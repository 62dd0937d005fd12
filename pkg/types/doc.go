// Package types defines the canonical, engine-agnostic health model shared by
// every dbfleet package.
//
// Engine adapters produce NodeRecord values; the compute package turns them
// into NodeHealth and ClusterGroup values and assembles a Snapshot. AlarmState
// is the only type whose identity outlives a poll cycle; it is keyed by
// NodeRecord.Key().
//
// HealthStatus is a total order: Critical (1) < Warning (2) < Healthy (3).
// The numeric value doubles as the display priority, so sorting ascending puts
// the most severe entries first.
package types
