// Package compute derives node and cluster health from canonical records.
//
// classify.go provides the pure Classify(NodeRecord, Thresholds) function.
// Rules are evaluated in order and the first match wins:
//
//  1. service reported stopped        → critical
//  2. role outside the engine's set   → critical
//  3. free disk % AND free GB both under threshold → warning
//  4. otherwise                       → healthy
//
// The disk rule is a conjunction so that a small disk that is mostly free, or
// a large disk with plenty of absolute headroom, is never flagged. Default
// thresholds are 25% and 200 GB.
//
// aggregate.go groups classified nodes into clusters. A cluster takes the
// status of its worst member. Members sort by (priority, name) and clusters by
// (priority, id), so output is deterministic for a given input.
//
// snapshot.go merges per-source results into the published Snapshot.
package compute
