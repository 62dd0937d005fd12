package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dbfleet/dbfleet/internal/compute"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort          = 8080
	DefaultGRPCPort          = 50051
	DefaultPollInterval      = 10 * time.Second
	DefaultPollTimeout       = 5 * time.Second
	DefaultMaxFailures       = 3
	DefaultCertCheckInterval = time.Hour
	DefaultResultTTL         = 5 * time.Minute
	DefaultAlarmCooldown     = 15 * time.Minute
	DefaultRedisKey          = "dbfleet:alarms"
	DefaultLogLevel          = "info"
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultLogMaxAgeDays     = 28
)

// Source kinds.
const (
	KindHTTP    = "http"
	KindSQL     = "sql"
	KindMongoDB = "mongodb"
)

// Config is the top-level configuration of the dbfleet server.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Log        LogConfig          `yaml:"log"`
	Server     ServerConfig       `yaml:"server"`
	Poll       PollConfig         `yaml:"poll"`
	Thresholds compute.Thresholds `yaml:"thresholds"`
	Sources    []Source           `yaml:"sources"`
	Alarms     AlarmsConfig       `yaml:"alarms"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Reloadable.
	Level string `yaml:"level"`

	// File, when set, sends logs to a size-rotated file instead of stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	// HTTPPort serves the REST API, WebSocket stream and /metrics.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the grpc.health.v1 service. 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// BroadcastInterval is how often the WebSocket hub pushes a snapshot.
	// Defaults to Poll.Interval.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// PollConfig holds reconciler defaults shared by every source.
type PollConfig struct {
	// Interval between two fetches of one source.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single fetch.
	Timeout time.Duration `yaml:"timeout"`

	// MaxFailures is the number of consecutive failed fetches after which a
	// source's last good data is dropped and the source reports degraded.
	MaxFailures int `yaml:"max_failures"`

	// CertCheckInterval is how often https endpoints have their TLS
	// certificate inspected.
	CertCheckInterval time.Duration `yaml:"cert_check_interval"`

	// ResultTTL drops a source's result from the published snapshot when it
	// has not been refreshed for this long. 0 keeps results forever.
	ResultTTL time.Duration `yaml:"result_ttl"`
}

// Source describes one telemetry feed for one engine.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Engine is mongodb | postgresql | cassandra | mssql (aliases accepted).
	Engine types.Engine `yaml:"engine"`

	// Kind is http (default) | sql | mongodb.
	Kind string `yaml:"kind"`

	// Interval and Timeout override the poll defaults when non-zero.
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`

	// Endpoint is the URL of the collaborator's JSON endpoint (kind http).
	Endpoint string     `yaml:"endpoint"`
	Auth     AuthConfig `yaml:"auth"`
	TLS      TLSConfig  `yaml:"tls"`

	// Driver is postgres | sqlserver (kind sql).
	Driver string `yaml:"driver"`

	// DSNEnv names the environment variable holding the connection string
	// (kind sql).
	DSNEnv string `yaml:"dsn_env"`

	// Query is the read-only statement returning one row per node (kind sql).
	Query string `yaml:"query"`

	// URIEnv names the environment variable holding the MongoDB URI
	// (kind mongodb).
	URIEnv     string `yaml:"uri_env"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`

	// GroupBy is the column or document field holding the cluster name.
	// Required for sql and mongodb kinds of every engine except mssql.
	GroupBy string `yaml:"group_by"`
}

// DSN returns the SQL connection string resolved from the environment.
func (s Source) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// URI returns the MongoDB connection URI resolved from the environment.
func (s Source) URI() string {
	if s.URIEnv == "" {
		return ""
	}
	return os.Getenv(s.URIEnv)
}

// AuthConfig specifies the authentication mode for an http source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header name for apikey mode (default X-API-Key).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// AlarmsConfig configures silence persistence and alarm notification.
type AlarmsConfig struct {
	// Store is memory (default) | redis.
	Store string      `yaml:"store"`
	Redis RedisConfig `yaml:"redis"`

	// Cooldown suppresses re-fires of the same node alarm for this duration.
	Cooldown time.Duration `yaml:"cooldown"`

	// MinSeverity is warning (default) | critical.
	MinSeverity string `yaml:"min_severity"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// RedisConfig locates the hash that persists alarm state.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Key         string `yaml:"key"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// IntervalFor returns the effective poll interval of src.
func (c *Config) IntervalFor(src Source) time.Duration {
	if src.Interval > 0 {
		return src.Interval
	}
	return c.Poll.Interval
}

// TimeoutFor returns the effective fetch timeout of src.
func (c *Config) TimeoutFor(src Source) time.Duration {
	if src.Timeout > 0 {
		return src.Timeout
	}
	return c.Poll.Timeout
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
		},
		Poll: PollConfig{
			Interval:          DefaultPollInterval,
			Timeout:           DefaultPollTimeout,
			MaxFailures:       DefaultMaxFailures,
			CertCheckInterval: DefaultCertCheckInterval,
			ResultTTL:         DefaultResultTTL,
		},
		Thresholds: compute.DefaultThresholds(),
		Alarms: AlarmsConfig{
			Store:       "memory",
			Cooldown:    DefaultAlarmCooldown,
			MinSeverity: "warning",
			Redis:       RedisConfig{Key: DefaultRedisKey},
		},
	}
}

// validate checks required fields and enums. Source engines are normalised
// to their canonical names and empty kinds default to http.
func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.BroadcastInterval < 0 {
		return fmt.Errorf("server.broadcast_interval must not be negative")
	}
	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if cfg.Poll.Timeout <= 0 {
		return fmt.Errorf("poll.timeout must be positive")
	}
	if cfg.Poll.MaxFailures < 1 {
		return fmt.Errorf("poll.max_failures must be at least 1")
	}
	if cfg.Poll.CertCheckInterval <= 0 {
		return fmt.Errorf("poll.cert_check_interval must be positive")
	}
	if cfg.Poll.ResultTTL < 0 {
		return fmt.Errorf("poll.result_ttl must not be negative")
	}
	if p := cfg.Thresholds.DiskFreePercent; p < 0 || p > 100 {
		return fmt.Errorf("thresholds.disk_free_percent %v is out of range [0, 100]", p)
	}
	if cfg.Thresholds.DiskFreeGB < 0 {
		return fmt.Errorf("thresholds.disk_free_gb must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i := range cfg.Sources {
		if err := validateSource(i, &cfg.Sources[i]); err != nil {
			return err
		}
		if seen[cfg.Sources[i].ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, cfg.Sources[i].ID)
		}
		seen[cfg.Sources[i].ID] = true
		if ttl := cfg.Poll.ResultTTL; ttl > 0 && cfg.IntervalFor(cfg.Sources[i]) >= ttl {
			return fmt.Errorf("sources[%d] %q: interval %s must be shorter than poll.result_ttl %s",
				i, cfg.Sources[i].ID, cfg.IntervalFor(cfg.Sources[i]), ttl)
		}
	}

	return validateAlarms(&cfg.Alarms)
}

func validateSource(i int, src *Source) error {
	if src.ID == "" {
		return fmt.Errorf("sources[%d]: id is required", i)
	}
	e, err := types.ParseEngine(string(src.Engine))
	if err != nil {
		return fmt.Errorf("sources[%d] %q: %w", i, src.ID, err)
	}
	src.Engine = e
	if src.Interval < 0 || src.Timeout < 0 {
		return fmt.Errorf("sources[%d] %q: interval and timeout must not be negative", i, src.ID)
	}

	if src.Kind == "" {
		src.Kind = KindHTTP
	}
	switch src.Kind {
	case KindHTTP:
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	case KindSQL:
		switch src.Driver {
		case "postgres", "sqlserver":
		default:
			return fmt.Errorf("sources[%d] %q: driver %q unknown: want postgres|sqlserver", i, src.ID, src.Driver)
		}
		if src.DSNEnv == "" || src.Query == "" {
			return fmt.Errorf("sources[%d] %q: dsn_env and query are required", i, src.ID)
		}
	case KindMongoDB:
		if src.URIEnv == "" || src.Database == "" || src.Collection == "" {
			return fmt.Errorf("sources[%d] %q: uri_env, database and collection are required", i, src.ID)
		}
	default:
		return fmt.Errorf("sources[%d] %q: unknown kind %q: want http|sql|mongodb", i, src.ID, src.Kind)
	}

	if src.Kind != KindHTTP && src.Engine != types.EngineMSSQL && src.GroupBy == "" {
		return fmt.Errorf("sources[%d] %q: group_by is required for %s rows", i, src.ID, src.Engine)
	}
	return nil
}

func validateAlarms(a *AlarmsConfig) error {
	switch a.Store {
	case "memory", "":
		a.Store = "memory"
	case "redis":
		if a.Redis.Addr == "" {
			return fmt.Errorf("alarms.redis.addr is required when alarms.store is redis")
		}
		if a.Redis.Key == "" {
			a.Redis.Key = DefaultRedisKey
		}
	default:
		return fmt.Errorf("alarms.store %q unknown: want memory|redis", a.Store)
	}
	if a.Cooldown < 0 {
		return fmt.Errorf("alarms.cooldown must not be negative")
	}
	switch a.MinSeverity {
	case "warning", "critical":
	case "":
		a.MinSeverity = "warning"
	default:
		return fmt.Errorf("alarms.min_severity %q unknown: want warning|critical", a.MinSeverity)
	}
	for i, wh := range a.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alarms.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
