package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultCTEndpoint is the crt.sh search endpoint
	DefaultCTEndpoint = "https://crt.sh/"

	// DefaultCTUserAgent identifies requests to the CT log service
	DefaultCTUserAgent = "BugHunter-Pro/1.0"

	maxCTResponseBytes = 64 << 20
)

// CTFetcher returns hostnames found in certificate transparency logs
type CTFetcher interface {
	Fetch(ctx context.Context, domain string) ([]string, error)
}

// ctEntry is one row of the crt.sh JSON output
type ctEntry struct {
	NameValue string `json:"name_value"`
}

// CTSource queries a crt.sh compatible endpoint. Successful answers are
// cached per domain for the configured TTL.
type CTSource struct {
	client    *http.Client
	endpoint  string
	userAgent string
	timeout   time.Duration
	cache     *ttlcache.Cache[string, []string]
	logger    *slog.Logger
}

// CTOption configures a CTSource
type CTOption func(*CTSource)

// WithCTEndpoint overrides the base URL of the CT service
func WithCTEndpoint(endpoint string) CTOption {
	return func(s *CTSource) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithCTUserAgent sets the User-Agent header
func WithCTUserAgent(ua string) CTOption {
	return func(s *CTSource) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithCTHTTPClient replaces the HTTP client
func WithCTHTTPClient(c *http.Client) CTOption {
	return func(s *CTSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithCTCacheTTL enables caching of successful lookups. Zero disables it.
func WithCTCacheTTL(ttl time.Duration) CTOption {
	return func(s *CTSource) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = ttlcache.New[string, []string](
			ttlcache.WithTTL[string, []string](ttl),
			ttlcache.WithDisableTouchOnHit[string, []string](),
		)
	}
}

// WithCTLogger sets the logger
func WithCTLogger(l *slog.Logger) CTOption {
	return func(s *CTSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCTSource creates a CT client with the given per-request timeout
func NewCTSource(timeout time.Duration, opts ...CTOption) *CTSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &CTSource{
		client:    &http.Client{},
		endpoint:  DefaultCTEndpoint,
		userAgent: DefaultCTUserAgent,
		timeout:   timeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the deduplicated subdomains of domain seen in CT logs.
// Timeouts, non-2xx answers and malformed JSON are returned as errors; the
// caller decides whether they matter.
func (s *CTSource) Fetch(ctx context.Context, domain string) ([]string, error) {
	if s.cache != nil {
		if item := s.cache.Get(domain); item != nil {
			s.logger.Debug("ct cache hit", "domain", domain)
			return append([]string(nil), item.Value()...), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse ct endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", "%."+domain)
	q.Set("output", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build ct request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ct query for %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ct query for %s: unexpected status %d", domain, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCTResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read ct response: %w", err)
	}

	names, err := ParseCTResponse(body, domain)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(domain, names, ttlcache.DefaultTTL)
	}
	return append([]string(nil), names...), nil
}

// ParseCTResponse extracts the subdomains of domain from a crt.sh JSON body.
// Each name_value may hold several newline separated names. Wildcards, names
// containing whitespace and names outside domain are dropped.
func ParseCTResponse(body []byte, domain string) ([]string, error) {
	var entries []ctEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode ct response: %w", err)
	}

	suffix := "." + domain
	seen := make(map[string]bool)
	names := []string{}

	for _, entry := range entries {
		for _, raw := range strings.Split(entry.NameValue, "\n") {
			name := strings.ToLower(strings.TrimSpace(raw))
			if name == "" || strings.Contains(name, "*") || strings.ContainsAny(name, " \t\r") {
				continue
			}
			if !strings.HasSuffix(name, suffix) || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}
