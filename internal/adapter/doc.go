// Package adapter maps engine-specific telemetry payloads onto the canonical
// types.NodeRecord.
//
// There is one adapter per engine (mongodb.go, postgres.go, cassandra.go,
// mssql.go). Each one only renames fields, walks a fixed fallback chain for
// fields that have more than one spelling, and defaults absent optional fields
// to "unknown" values. Field lookup is case-insensitive so rows read from a
// SQL repository (which may fold column names to lower case) adapt the same
// way as JSON payloads.
//
// Payload shapes:
//   - MongoDB, PostgreSQL, Cassandra: [{"<cluster>": [node, ...]}, ...]
//   - SQL Server: a flat array of rows, one per (listener, node, drive); rows
//     are grouped per node into a Drives list.
//
// A payload that is not an array returns ErrShape. A single record missing its
// name or cluster is reported in Result.Dropped and skipped; it never aborts
// the rest of the payload.
package adapter
