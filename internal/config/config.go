package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. BUGHUNTER_SCAN_CONCURRENCY
const EnvPrefix = "BUGHUNTER"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Scan      ScanConfig      `mapstructure:"scan" yaml:"scan"`
	CT        CTConfig        `mapstructure:"ct" yaml:"ct"`
	Resolvers []string        `mapstructure:"resolvers" yaml:"resolvers"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Scope     ScopeConfig     `mapstructure:"scope" yaml:"scope"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port for net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ScanConfig controls candidate verification
type ScanConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	DNSTimeout  time.Duration `mapstructure:"dns_timeout" yaml:"dns_timeout"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	VerifyHTTP  bool          `mapstructure:"verify_http" yaml:"verify_http"`
	InsecureTLS bool          `mapstructure:"insecure_tls" yaml:"insecure_tls"`
	// Wordlist is a file path; empty selects the built-in list
	Wordlist      string `mapstructure:"wordlist" yaml:"wordlist"`
	ProgressEvery int    `mapstructure:"progress_every" yaml:"progress_every"`
	// RateLimit caps probe launches per second; 0 disables it
	RateLimit     float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	DNSRetries    int     `mapstructure:"dns_retries" yaml:"dns_retries"`
	StrictCT      bool    `mapstructure:"strict_ct" yaml:"strict_ct"`
	MaxCandidates int     `mapstructure:"max_candidates" yaml:"max_candidates"`
	OutputDir     string  `mapstructure:"output_dir" yaml:"output_dir"`
}

// CTConfig contains certificate transparency settings
type CTConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// StoreConfig selects the session store backend
type StoreConfig struct {
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	DBPath    string        `mapstructure:"db_path" yaml:"db_path"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// NotifyConfig contains completion notification settings
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

// ScopeConfig restricts which domains may be scanned
type ScopeConfig struct {
	AllowedDomains []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`
}

// TelemetryConfig contains OpenTelemetry export settings
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure" yaml:"insecure"`
	ServiceName  string `mapstructure:"service_name" yaml:"service_name"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration layered as defaults, then a YAML file, then
// BUGHUNTER_* environment variables.
// If path is empty, searches for bughunter.yaml in the current directory,
// ./configs and ~/.config/bughunter/; finding none is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seed viper with the defaults so every key is known to AutomaticEnv
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		// Use explicit path
		v.SetConfigFile(path)
	} else {
		// Search for config in default locations
		v.SetConfigName("bughunter")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "bughunter"))
		}
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be between 1 and 65535"))
	}

	if c.Scan.Concurrency < 0 {
		errs = append(errs, errors.New("scan.concurrency cannot be negative"))
	}

	if c.Scan.DNSTimeout <= 0 {
		errs = append(errs, errors.New("scan.dns_timeout must be positive"))
	}

	if c.Scan.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("scan.http_timeout must be positive"))
	}

	if c.Scan.RateLimit < 0 {
		errs = append(errs, errors.New("scan.rate_limit cannot be negative"))
	}

	if c.Scan.DNSRetries < 0 {
		errs = append(errs, errors.New("scan.dns_retries cannot be negative"))
	}

	if c.CT.Enabled && c.CT.Timeout <= 0 {
		errs = append(errs, errors.New("ct.timeout must be positive when ct is enabled"))
	}

	switch c.Store.Backend {
	case "memory":
	case "bolt":
		if c.Store.DBPath == "" {
			errs = append(errs, errors.New("store.db_path cannot be empty for the bolt backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q must be memory or bolt", c.Store.Backend))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
