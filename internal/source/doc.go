// Package source fetches raw telemetry payloads for the poll reconciler.
//
// Three kinds are supported:
//   - http: GET a collaborator's JSON endpoint (apikey, bearer, basic or mTLS
//     auth, secrets read from the environment).
//   - sql: run a read-only query against a telemetry repository on PostgreSQL
//     (lib/pq) or SQL Server (go-mssqldb).
//   - mongodb: read node documents from a repository collection.
//
// Repository rows are reshaped into the same payload the http kind would
// return, so the engine adapters never know where a payload came from.
// Fetchers only move bytes: they do not interpret node fields.
package source
