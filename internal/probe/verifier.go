// Package probe verifies candidates under a bounded concurrency ceiling.
// Per-candidate failures become "not live" results; only local resource
// exhaustion aborts a batch.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hakim/bughunter/internal/httpprobe"
	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/resolver"
)

// ErrResourceExhausted means the process ran out of sockets or file
// descriptors. It is the only error that stops a batch.
var ErrResourceExhausted = errors.New("local resources exhausted")

// IsResourceExhausted reports whether err was caused by fd exhaustion
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrResourceExhausted) || errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return true
	}
	// some resolver paths flatten the errno into text
	return strings.Contains(err.Error(), "too many open files")
}

// HTTPChecker checks web liveness of a host
type HTTPChecker interface {
	Check(ctx context.Context, host string) httpprobe.Result
}

// VerifierConfig contains configuration for a Verifier
type VerifierConfig struct {
	Resolver resolver.Resolver
	// HTTP is optional; nil means DNS-only verification
	HTTP HTTPChecker
	// Retries is the number of extra attempts for transient DNS failures
	Retries      int
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

// Verifier checks one candidate: DNS first, then HTTP and HTTPS when DNS
// answered
type Verifier struct {
	resolver     resolver.Resolver
	http         HTTPChecker
	retries      int
	retryBackoff time.Duration
	logger       *slog.Logger
}

// NewVerifier creates a Verifier from cfg
func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Verifier{
		resolver:     cfg.Resolver,
		http:         cfg.HTTP,
		retries:      cfg.Retries,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
	}
}

// Verify produces the ProbeResult for c. The returned error is non-nil only
// when it wraps ErrResourceExhausted; every other failure is absorbed.
func (v *Verifier) Verify(ctx context.Context, c models.Candidate) (models.ProbeResult, error) {
	result := models.ProbeResult{Candidate: c}

	ans, err := v.resolve(ctx, c.Name)
	if err != nil {
		if IsResourceExhausted(err) {
			return result, fmt.Errorf("%w: resolve %s: %v", ErrResourceExhausted, c.Name, err)
		}
		if !errors.Is(err, resolver.ErrNotFound) {
			v.logger.Debug("dns resolution failed", "candidate", c.Name, "error", err)
		}
		return result, nil
	}
	if !ans.Found() {
		return result, nil
	}

	result.DNSLive = true
	result.ResolvedAddresses = ans.Addresses
	result.CNAME = ans.CNAME

	if v.http == nil {
		return result, nil
	}

	web := v.http.Check(ctx, c.Name)
	for _, herr := range []error{web.HTTPSErr, web.HTTPErr} {
		if IsResourceExhausted(herr) {
			return result, fmt.Errorf("%w: http probe %s: %v", ErrResourceExhausted, c.Name, herr)
		}
	}
	result.HTTPLive = web.HTTP
	result.HTTPSLive = web.HTTPS

	return result, nil
}

// resolve runs the DNS lookup with bounded retries for transient errors.
// Not-found answers and exhaustion are never retried.
func (v *Verifier) resolve(ctx context.Context, host string) (resolver.Answer, error) {
	var ans resolver.Answer

	op := func() error {
		a, err := v.resolver.Resolve(ctx, host)
		if err != nil {
			if !resolver.IsTransient(err) || IsResourceExhausted(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		ans = a
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(v.retryBackoff), uint64(v.retries)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	return ans, err
}
