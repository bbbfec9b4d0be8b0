package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Scan: ScanConfig{
			Concurrency:   20,
			DNSTimeout:    3 * time.Second,
			HTTPTimeout:   4 * time.Second,
			VerifyHTTP:    true,
			ProgressEvery: 20,
			DNSRetries:    1,
		},
		CT: CTConfig{
			Enabled:   true,
			Endpoint:  "https://crt.sh/",
			Timeout:   10 * time.Second,
			CacheTTL:  15 * time.Minute,
			UserAgent: "BugHunter-Pro/1.0",
		},
		Resolvers: []string{},
		Store: StoreConfig{
			Backend:   "memory",
			DBPath:    "bughunter.db",
			Retention: time.Hour,
		},
		Scope: ScopeConfig{
			AllowedDomains: []string{},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "bughunter",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes a default configuration to the specified path
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
