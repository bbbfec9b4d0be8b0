package discovery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hakim/bughunter/internal/resolver"
)

// wildcardLabelBytes random bytes give a 12 character hex label
const wildcardLabelBytes = 6

// WildcardResult is the outcome of a wildcard DNS probe
type WildcardResult struct {
	Detected  bool     `json:"detected"`
	Probe     string   `json:"probe"`
	Addresses []string `json:"addresses,omitempty"`
	CNAME     string   `json:"cname,omitempty"`
}

// WildcardDetector checks whether a zone answers for names that cannot exist
type WildcardDetector struct {
	resolver resolver.Resolver
	logger   *slog.Logger
}

// NewWildcardDetector creates a detector using r for resolution
func NewWildcardDetector(r resolver.Resolver, logger *slog.Logger) *WildcardDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &WildcardDetector{resolver: r, logger: logger}
}

// Detect resolves one random label under domain. Any answer means wildcard
// DNS. A not-found answer means plain resolution can be trusted. Any other
// failure is returned alongside a not-detected result so the caller can
// decide how to proceed.
func (d *WildcardDetector) Detect(ctx context.Context, domain string) (WildcardResult, error) {
	label, err := randomLabel()
	if err != nil {
		return WildcardResult{}, err
	}
	probe := label + "." + domain
	result := WildcardResult{Probe: probe}

	ans, err := d.resolver.Resolve(ctx, probe)
	switch {
	case err == nil && ans.Found():
		result.Detected = true
		result.Addresses = ans.Addresses
		result.CNAME = ans.CNAME
		d.logger.Info("wildcard DNS detected", "domain", domain, "probe", probe, "addresses", ans.Addresses)
		return result, nil
	case err == nil, errors.Is(err, resolver.ErrNotFound):
		d.logger.Debug("no wildcard DNS", "domain", domain, "probe", probe)
		return result, nil
	default:
		return result, fmt.Errorf("wildcard probe %s: %w", probe, err)
	}
}

func randomLabel() (string, error) {
	b := make([]byte, wildcardLabelBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random label: %w", err)
	}
	return hex.EncodeToString(b), nil
}
