// Package api implements the HTTP REST API of the dbfleet server.
//
// New(store, registry, notifier) returns an http.Handler that serves:
//
//	GET /api/v1/health            global counts, alarm counts, source count
//	GET /api/v1/snapshot          every engine's clusters plus the suppression map
//	GET /api/v1/engines/{engine}  one engine's snapshot; 404 if it has no source
//	GET /api/v1/sources           per-source poll status with diagnostic hints
//	GET /api/v1/alarms            alarm state of every known node
//	GET /api/v1/alarms/{key}      alarm state of one node
//	PUT /api/v1/alarms/{key}      operator toggle: {alert_enabled, silence_until | silence_for}
//	GET /api/v1/alerts            firing and recently resolved alarms
//
// Node keys have the form engine/cluster/name and are taken verbatim from the
// path after /api/v1/alarms/.
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. JSON types are defined in types.go. No external
// HTTP framework is used.
package api
