package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for lpstaked.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	GenesisPath     string          `yaml:"genesis"`
	PausedModules   []string        `yaml:"paused_modules"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"`
	Storage         StorageConfig   `yaml:"storage"`
	TLS             TLSConfig       `yaml:"tls"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Indexer         IndexerConfig   `yaml:"indexer"`
	Stream          StreamConfig    `yaml:"stream"`
	Logging         LoggingConfig   `yaml:"logging"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects the ledger key-value backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// TLSConfig enables HTTPS on the API listener.
type TLSConfig struct {
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
}

// AuthConfig lists the API accounts. Each bearer token acts as one ledger
// address.
type AuthConfig struct {
	Accounts []Account `yaml:"accounts"`
}

// Account binds a bearer token to a ledger address.
type Account struct {
	Label   string `yaml:"label"`
	Token   string `yaml:"token"`
	Address string `yaml:"address"`
}

// RateLimitConfig throttles authenticated API calls per account.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// IndexerConfig points the event indexer at a database. Postgres URLs use
// the postgres driver, anything else is treated as a SQLite path.
type IndexerConfig struct {
	DSN string `yaml:"dsn"`
}

// StreamConfig controls the live event fan-out.
type StreamConfig struct {
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
	Websocket bool   `yaml:"websocket"`
	Buffer    int    `yaml:"buffer"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Env        string `yaml:"env"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig wires OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalise() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":7090"
	}
	if c.ShutdownTimeout.Duration <= 0 {
		c.ShutdownTimeout.Duration = 5 * time.Second
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = "leveldb"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "lpstake-data"
	}
	if c.Stream.Buffer <= 0 {
		c.Stream.Buffer = 64
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	return c.validate()
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage.backend must be one of leveldb, bolt or memory")
	}
	if len(c.Auth.Accounts) == 0 {
		return fmt.Errorf("auth.accounts must list at least one account")
	}
	for i, acct := range c.Auth.Accounts {
		if strings.TrimSpace(acct.Token) == "" {
			return fmt.Errorf("auth.accounts[%d].token must be configured", i)
		}
		if strings.TrimSpace(acct.Address) == "" {
			return fmt.Errorf("auth.accounts[%d].address must be configured", i)
		}
	}
	if (c.TLS.CertPath == "") != (c.TLS.KeyPath == "") {
		return fmt.Errorf("tls.cert and tls.key must be configured together")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}
