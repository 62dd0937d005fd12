// Package config loads and watches the dbfleet configuration file.
//
// Top-level sections:
//   - log: level, optional rotated file output
//   - server: http_port (REST, WebSocket, /metrics), grpc_port (health service)
//   - poll: interval (10s), timeout (5s), max_failures (3), cert_check_interval (1h)
//   - thresholds: disk_free_percent (25), disk_free_gb (200)
//   - sources: id, engine, kind (http|sql|mongodb) and kind-specific fields
//   - alarms: store (memory|redis), cooldown, min_severity, webhooks
//
// Secrets are never stored in the file: API keys, tokens, passwords, DSNs and
// URIs are read from the environment variables named by the *_env fields.
//
// Load(path) applies defaults, unmarshals, then validates. Validation also
// normalises engine aliases ("pg", "mongo", "sqlserver") to canonical names.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write or
// create. Only the log level and classifier thresholds are applied live;
// source and listener changes need a restart.
package config
