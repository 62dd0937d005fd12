package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dbfleet/dbfleet/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort || cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Errorf("ports: got %d/%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.Poll.Interval != DefaultPollInterval || cfg.Poll.Timeout != DefaultPollTimeout {
		t.Errorf("poll: got %v/%v", cfg.Poll.Interval, cfg.Poll.Timeout)
	}
	if cfg.Poll.MaxFailures != DefaultMaxFailures {
		t.Errorf("max_failures: got %d, want %d", cfg.Poll.MaxFailures, DefaultMaxFailures)
	}
	if cfg.Thresholds.DiskFreePercent != 25 || cfg.Thresholds.DiskFreeGB != 200 {
		t.Errorf("thresholds: got %+v", cfg.Thresholds)
	}
	if cfg.Alarms.Store != "memory" || cfg.Alarms.MinSeverity != "warning" {
		t.Errorf("alarms: got %+v", cfg.Alarms)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level: got %q", cfg.Log.Level)
	}
}

func TestLoad_Full(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://repo/telemetry")
	p := writeConfig(t, `log:
  level: debug
  file: /var/log/dbfleet.log
server:
  http_port: 9000
  grpc_port: 0
poll:
  interval: 7s
  max_failures: 5
thresholds:
  disk_free_percent: 20
  disk_free_gb: 100
sources:
  - id: mongo-prod
    engine: mongo
    endpoint: https://telemetry.local/mongo
    interval: 3s
    auth:
      mode: bearer
      token_env: TOKEN
  - id: pg-repo
    engine: pg
    kind: sql
    driver: postgres
    dsn_env: TEST_PG_DSN
    query: SELECT * FROM pg_nodes
    group_by: ClusterName
  - id: ag
    engine: sqlserver
    kind: sql
    driver: sqlserver
    dsn_env: MSSQL_DSN
    query: SELECT * FROM ag_nodes
alarms:
  store: redis
  redis:
    addr: localhost:6379
  cooldown: 5m
  min_severity: critical
  webhooks:
    - type: slack
      url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 || cfg.Server.GRPCPort != 0 {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if len(cfg.Sources) != 3 {
		t.Fatalf("sources: got %d, want 3", len(cfg.Sources))
	}

	mongo, pg, ag := cfg.Sources[0], cfg.Sources[1], cfg.Sources[2]
	if mongo.Engine != types.EngineMongoDB || mongo.Kind != KindHTTP {
		t.Errorf("mongo source: got %+v", mongo)
	}
	if cfg.IntervalFor(mongo) != 3*time.Second || cfg.IntervalFor(pg) != 7*time.Second {
		t.Errorf("IntervalFor: got %v/%v", cfg.IntervalFor(mongo), cfg.IntervalFor(pg))
	}
	if cfg.TimeoutFor(pg) != DefaultPollTimeout {
		t.Errorf("TimeoutFor: got %v", cfg.TimeoutFor(pg))
	}
	if pg.Engine != types.EnginePostgreSQL || pg.DSN() != "postgres://repo/telemetry" {
		t.Errorf("pg source: got %+v dsn=%q", pg, pg.DSN())
	}
	if ag.Engine != types.EngineMSSQL {
		t.Errorf("ag engine: got %q", ag.Engine)
	}
	if cfg.Alarms.Redis.Key != DefaultRedisKey || cfg.Alarms.Cooldown != 5*time.Minute {
		t.Errorf("alarms: got %+v", cfg.Alarms)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"bad http port", "server:\n  http_port: 70000\n", "http_port"},
		{"zero interval", "poll:\n  interval: 0s\n", "poll.interval"},
		{"zero max failures", "poll:\n  max_failures: 0\n", "max_failures"},
		{"percent above 100", "thresholds:\n  disk_free_percent: 120\n", "disk_free_percent"},
		{"missing id", "sources:\n  - engine: mongodb\n    endpoint: http://x\n", "id is required"},
		{"unknown engine", "sources:\n  - id: o\n    engine: oracle\n    endpoint: http://x\n", "unknown engine"},
		{"missing endpoint", "sources:\n  - id: m\n    engine: mongodb\n", "endpoint is required"},
		{"unknown kind", "sources:\n  - id: m\n    engine: mongodb\n    kind: kafka\n", "unknown kind"},
		{"unknown auth", "sources:\n  - id: m\n    engine: mongodb\n    endpoint: http://x\n    auth:\n      mode: oauth2\n", "auth mode"},
		{"sql without driver", "sources:\n  - id: p\n    engine: pg\n    kind: sql\n    dsn_env: D\n    query: q\n    group_by: c\n", "driver"},
		{"sql without group_by", "sources:\n  - id: p\n    engine: pg\n    kind: sql\n    driver: postgres\n    dsn_env: D\n    query: q\n", "group_by"},
		{"mongodb without collection", "sources:\n  - id: m\n    engine: mongodb\n    kind: mongodb\n    uri_env: U\n    database: d\n    group_by: rs\n", "collection"},
		{"duplicate id", "sources:\n  - id: a\n    engine: mongodb\n    endpoint: http://x\n  - id: a\n    engine: cassandra\n    endpoint: http://y\n", "duplicate"},
		{"redis without addr", "alarms:\n  store: redis\n", "redis.addr"},
		{"unknown store", "alarms:\n  store: etcd\n", "alarms.store"},
		{"unknown severity", "alarms:\n  min_severity: info\n", "min_severity"},
		{"interval not below ttl", "poll:\n  result_ttl: 1m\nsources:\n  - id: m\n    engine: mongodb\n    endpoint: http://x\n    interval: 2m\n", "result_ttl"},
		{"unknown webhook", "alarms:\n  webhooks:\n    - type: pagerduty\n", "webhooks"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	if err != nil {
		t.Fatalf("config.example.yaml: %v", err)
	}
	if len(cfg.Sources) != 4 {
		t.Fatalf("sources = %d, want 4", len(cfg.Sources))
	}
	kinds := map[types.Engine]string{}
	for _, s := range cfg.Sources {
		kinds[s.Engine] = s.Kind
	}
	want := map[types.Engine]string{
		types.EngineMongoDB:    KindHTTP,
		types.EnginePostgreSQL: KindSQL,
		types.EngineCassandra:  KindMongoDB,
		types.EngineMSSQL:      KindSQL,
	}
	for e, k := range want {
		if kinds[e] != k {
			t.Errorf("%s kind = %q, want %q", e, kinds[e], k)
		}
	}
	if cfg.Alarms.Store != "redis" || len(cfg.Alarms.Webhooks) != 2 {
		t.Errorf("alarms = %+v", cfg.Alarms)
	}
}

func TestAuthConfig_EnvResolution(t *testing.T) {
	t.Setenv("TEST_KEY", "k")
	t.Setenv("TEST_TOKEN", "t")
	t.Setenv("TEST_PASS", "p")
	a := AuthConfig{KeyEnv: "TEST_KEY", TokenEnv: "TEST_TOKEN", PasswordEnv: "TEST_PASS"}
	if a.Key() != "k" || a.Token() != "t" || a.Password() != "p" {
		t.Errorf("got %q/%q/%q", a.Key(), a.Token(), a.Password())
	}
	if (AuthConfig{}).Key() != "" {
		t.Error("empty KeyEnv should resolve to empty string")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 64)
	go func() {
		_ = Watch(ctx, p, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Keep rewriting until the watcher is registered and picks a write up.
	// A write can be observed half-done (truncated file), so only the final
	// level counts.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.Log.Level == "debug" {
				return
			}
		case <-tick.C:
			if err := os.WriteFile(p, []byte("log:\n  level: debug\n"), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
