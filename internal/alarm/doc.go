// Package alarm tracks per-node alerting state and turns classified nodes
// into firing and resolved alarms.
//
// Every node has an AlarmState keyed by "engine/cluster/name". The state is
// created the first time the node is observed (alerting enabled) and changes
// only when an operator toggles it. A silence is alerting disabled, optionally
// until a deadline; IsSuppressed re-checks the deadline on every call, so an
// expired silence simply stops suppressing and is never cleared by a timer.
//
// State is persisted through a Store: MemoryStore for single-process use,
// RedisStore to survive restarts.
//
// The Notifier compares each published snapshot against the registry and
// delivers alarm transitions to Slack, Teams or generic HTTP webhooks.
package alarm
