package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string    `json:"serverAddress" yaml:"serverAddress" toml:"serverAddress" env:"SERVER_ADDRESS"`
	DatabasePath  string    `json:"databasePath" yaml:"databasePath" toml:"databasePath" env:"DATABASE_PATH"`
	DatabaseURL   string    `json:"databaseUrl" yaml:"databaseUrl" toml:"databaseUrl" env:"DATABASE_URL"`
	Remote        Remote    `json:"remote" yaml:"remote" toml:"remote"`
	Sync          Sync      `json:"sync" yaml:"sync" toml:"sync"`
	Security      Security  `json:"security" yaml:"security" toml:"security"`
	Telemetry     Telemetry `json:"telemetry" yaml:"telemetry" toml:"telemetry"`
}

// Remote configures the hosted data service the gateway writes to
type Remote struct {
	URL          string `json:"url" yaml:"url" toml:"url" env:"REMOTE_URL"`
	APIKey       string `json:"apiKey" yaml:"apiKey" toml:"apiKey" env:"REMOTE_API_KEY"`
	AccessToken  string `json:"accessToken" yaml:"accessToken" toml:"accessToken" env:"REMOTE_ACCESS_TOKEN"`
	TokenURL     string `json:"tokenUrl" yaml:"tokenUrl" toml:"tokenUrl" env:"REMOTE_TOKEN_URL"`
	ClientID     string `json:"clientId" yaml:"clientId" toml:"clientId" env:"REMOTE_CLIENT_ID"`
	ClientSecret string `json:"clientSecret" yaml:"clientSecret" toml:"clientSecret" env:"REMOTE_CLIENT_SECRET"`
	Schema       string `json:"schema" yaml:"schema" toml:"schema" env:"REMOTE_SCHEMA"`
	TimeoutSecs  int    `json:"timeoutSeconds" yaml:"timeoutSeconds" toml:"timeoutSeconds" env:"REMOTE_TIMEOUT_SECONDS"`
}

// UsesClientCredentials returns true if tokens should be fetched with the OAuth2 client credentials flow
func (r Remote) UsesClientCredentials() bool {
	return r.TokenURL != "" && r.ClientID != "" && r.ClientSecret != ""
}

// Timeout returns the per-request timeout for remote calls
func (r Remote) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// Connectivity modes
const (
	ConnectivityProbe  = "probe"
	ConnectivityManual = "manual"
)

// Sync configures the offline queue and the sync engine
type Sync struct {
	IntervalSeconds      int    `json:"intervalSeconds" yaml:"intervalSeconds" toml:"intervalSeconds" env:"SYNC_INTERVAL_SECONDS"`
	MaxRetries           int    `json:"maxRetries" yaml:"maxRetries" toml:"maxRetries" env:"SYNC_MAX_RETRIES"`
	ProbeIntervalSeconds int    `json:"probeIntervalSeconds" yaml:"probeIntervalSeconds" toml:"probeIntervalSeconds" env:"SYNC_PROBE_INTERVAL_SECONDS"`
	ConnectivityMode     string `json:"connectivityMode" yaml:"connectivityMode" toml:"connectivityMode" env:"SYNC_CONNECTIVITY_MODE"`
	StoreName            string `json:"storeName" yaml:"storeName" toml:"storeName" env:"SYNC_STORE_NAME"`
	QueueKey             string `json:"queueKey" yaml:"queueKey" toml:"queueKey" env:"SYNC_QUEUE_KEY"`
}

// Interval returns the replay timer period
func (s Sync) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ProbeInterval returns how often remote reachability is checked
func (s Sync) ProbeInterval() time.Duration {
	return time.Duration(s.ProbeIntervalSeconds) * time.Second
}

// Security configuration
type Security struct {
	APIKey       string `json:"apiKey" yaml:"apiKey" toml:"apiKey" env:"API_KEY"`
	APIKeyHeader string `json:"apiKeyHeader" yaml:"apiKeyHeader" toml:"apiKeyHeader" env:"API_KEY_HEADER"`
	// Comma separated list of origins allowed to call the API from a browser
	AllowedOrigins string `json:"allowedOrigins" yaml:"allowedOrigins" toml:"allowedOrigins" env:"ALLOWED_ORIGINS"`
}

// Origins splits AllowedOrigins into a list
func (s Security) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Telemetry configuration
type Telemetry struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" toml:"enabled" env:"OTEL_ENABLED"`
	OTLPEndpoint string `json:"otlpEndpoint" yaml:"otlpEndpoint" toml:"otlpEndpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Environment  string `json:"environment" yaml:"environment" toml:"environment" env:"ENVIRONMENT"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5050",
		DatabasePath:  "fonosync.db",
		Remote: Remote{
			Schema:      "public",
			TimeoutSecs: 15,
		},
		Sync: Sync{
			IntervalSeconds:      10,
			MaxRetries:           3,
			ProbeIntervalSeconds: 15,
			ConnectivityMode:     ConnectivityProbe,
			StoreName:            "fonosync_offline",
			QueueKey:             "offline_queue",
		},
		Security: Security{
			APIKey:         "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader:   "X-API-Key",
			AllowedOrigins: "http://localhost:5173",
		},
		Telemetry: Telemetry{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			Environment:  "development",
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	return LoadFile(configPath)
}

// LoadFile reads path if it exists, then applies environment overrides.
// The file format is chosen by extension: .yaml/.yml, .toml, anything else is JSON.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate checks values the sync engine depends on
func (c *Config) Validate() error {
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("sync.intervalSeconds must be positive, got %d", c.Sync.IntervalSeconds)
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync.maxRetries must be positive, got %d", c.Sync.MaxRetries)
	}
	if c.Sync.ProbeIntervalSeconds <= 0 {
		return fmt.Errorf("sync.probeIntervalSeconds must be positive, got %d", c.Sync.ProbeIntervalSeconds)
	}
	switch c.Sync.ConnectivityMode {
	case ConnectivityProbe, ConnectivityManual:
	default:
		return fmt.Errorf("sync.connectivityMode must be %q or %q, got %q",
			ConnectivityProbe, ConnectivityManual, c.Sync.ConnectivityMode)
	}
	if strings.TrimSpace(c.Sync.StoreName) == "" || strings.TrimSpace(c.Sync.QueueKey) == "" {
		return fmt.Errorf("sync.storeName and sync.queueKey are required")
	}
	if c.Remote.TimeoutSecs <= 0 {
		return fmt.Errorf("remote.timeoutSeconds must be positive, got %d", c.Remote.TimeoutSecs)
	}
	return nil
}
