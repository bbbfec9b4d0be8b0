package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hakim/bughunter/internal/config"
	"github.com/hakim/bughunter/internal/discovery"
	"github.com/hakim/bughunter/internal/httpprobe"
	"github.com/hakim/bughunter/internal/metrics"
	"github.com/hakim/bughunter/internal/pipeline"
	"github.com/hakim/bughunter/internal/resolver"
	"github.com/hakim/bughunter/internal/storage"
)

// newLogger builds the process logger from the log section
func newLogger(lc config.LogConfig, verbose bool) *slog.Logger {
	return newLoggerTo(os.Stderr, lc, verbose)
}

func newLoggerTo(w io.Writer, lc config.LogConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the configured session store backend
func openStore(c *config.Config) (storage.SessionStore, error) {
	switch c.Store.Backend {
	case "bolt":
		store, err := storage.NewBoltStore(c.Store.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return store, nil
	default:
		return storage.NewMemoryStore(c.Store.Retention), nil
	}
}

// newResolver returns the resolver used for candidate verification: the
// system resolver, or the configured servers when any are listed
func newResolver(c *config.Config) resolver.Resolver {
	if len(c.Resolvers) == 0 {
		return resolver.NewSystemResolver(c.Scan.DNSTimeout)
	}
	return resolver.NewDNSResolver(resolver.ParseServers(c.Resolvers), c.Scan.DNSTimeout)
}

// newLookupResolver returns the multi-server resolver used for record lookups;
// without configured servers it cross-checks the public resolvers
func newLookupResolver(c *config.Config) *resolver.DNSResolver {
	return resolver.NewDNSResolver(resolver.ParseServers(c.Resolvers), c.Scan.DNSTimeout)
}

// loadWords returns the configured wordlist, or the built-in one
func loadWords(c *config.Config) ([]string, error) {
	if c.Scan.Wordlist == "" {
		return discovery.DefaultWordlist(), nil
	}
	words, err := discovery.LoadWordlist(c.Scan.Wordlist)
	if err != nil {
		return nil, fmt.Errorf("loading wordlist: %w", err)
	}
	return words, nil
}

// runnerOptions are the per-command additions to the configured runner
type runnerOptions struct {
	store   storage.SessionStore
	metrics *metrics.Metrics
	scope   []string
	webhook string
	logger  *slog.Logger
}

// newRunner wires a pipeline.Runner from configuration
func newRunner(c *config.Config, opts runnerOptions) (*pipeline.Runner, error) {
	words, err := loadWords(c)
	if err != nil {
		return nil, err
	}

	rc := pipeline.RunnerConfig{
		Words:         words,
		Resolver:      newResolver(c),
		Store:         opts.store,
		Metrics:       opts.metrics,
		Concurrency:   c.Scan.Concurrency,
		RateLimit:     c.Scan.RateLimit,
		DNSRetries:    c.Scan.DNSRetries,
		StrictCT:      c.Scan.StrictCT,
		MaxCandidates: c.Scan.MaxCandidates,
		ProgressEvery: c.Scan.ProgressEvery,
		Logger:        opts.logger,
	}

	if c.CT.Enabled {
		rc.CT = discovery.NewCTSource(c.CT.Timeout,
			discovery.WithCTEndpoint(c.CT.Endpoint),
			discovery.WithCTUserAgent(c.CT.UserAgent),
			discovery.WithCTCacheTTL(c.CT.CacheTTL),
			discovery.WithCTLogger(opts.logger),
		)
	}

	// Always built; verify_http only sets the request default
	rc.HTTP = httpprobe.NewChecker(httpprobe.Config{
		Timeout:     c.Scan.HTTPTimeout,
		InsecureTLS: c.Scan.InsecureTLS,
		Logger:      opts.logger,
	})
	rc.DNSOnly = !c.Scan.VerifyHTTP

	scope := append([]string(nil), c.Scope.AllowedDomains...)
	scope = append(scope, opts.scope...)
	if len(scope) > 0 {
		rc.Scope = &pipeline.ScopeConfig{AllowedDomains: scope}
	}

	webhook := c.Notify.WebhookURL
	if opts.webhook != "" {
		webhook = opts.webhook
	}
	if webhook != "" {
		rc.Notifier = &pipeline.Notifier{WebhookURL: webhook}
	}

	return pipeline.NewRunner(rc), nil
}

// splitCSV splits a comma-separated flag value, dropping empty entries
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
