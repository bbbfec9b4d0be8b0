// Package resolver turns hostnames into liveness answers. Two backends are
// provided: the host's configured resolver via net.Resolver, and explicit
// upstream servers queried with miekg/dns.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrNotFound reports that the name does not exist or has no usable records
var ErrNotFound = errors.New("name not found")

// Answer holds what a resolver learned about one host
type Answer struct {
	Host      string
	Addresses []string
	CNAME     string
}

// Found reports whether at least one address or canonical name was returned
func (a Answer) Found() bool {
	return len(a.Addresses) > 0 || a.CNAME != ""
}

// Resolver resolves a single hostname.
// Implementations return an error wrapping ErrNotFound for NXDOMAIN-style
// answers and any other error for transport or server failures.
type Resolver interface {
	Resolve(ctx context.Context, host string) (Answer, error)
}

// SystemResolver resolves through the host environment's configured resolvers
type SystemResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewSystemResolver returns a resolver backed by net.DefaultResolver.
// A positive timeout bounds every Resolve call.
func NewSystemResolver(timeout time.Duration) *SystemResolver {
	return NewSystemResolverWith(net.DefaultResolver, timeout)
}

// NewSystemResolverWith wraps an existing net.Resolver
func NewSystemResolverWith(r *net.Resolver, timeout time.Duration) *SystemResolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &SystemResolver{resolver: r, timeout: timeout}
}

// Resolve looks up A/AAAA records and the canonical name for host.
// A CNAME without addresses still counts as an answer.
func (r *SystemResolver) Resolve(ctx context.Context, host string) (Answer, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ans := Answer{Host: host}

	addrs, err := r.resolver.LookupHost(ctx, host)
	if err != nil {
		if !isNotFound(err) {
			return ans, fmt.Errorf("resolve %s: %w", host, err)
		}
		if cname := r.canonical(ctx, host); cname != "" {
			ans.CNAME = cname
			return ans, nil
		}
		return ans, fmt.Errorf("resolve %s: %w", host, ErrNotFound)
	}

	ans.Addresses = addrs
	ans.CNAME = r.canonical(ctx, host)

	if !ans.Found() {
		return ans, fmt.Errorf("resolve %s: %w", host, ErrNotFound)
	}
	return ans, nil
}

// canonical returns the CNAME target of host, or "" when host is already canonical
func (r *SystemResolver) canonical(ctx context.Context, host string) string {
	cname, err := r.resolver.LookupCNAME(ctx, host)
	if err != nil {
		return ""
	}
	cname = strings.TrimSuffix(strings.ToLower(cname), ".")
	if cname == "" || cname == strings.TrimSuffix(strings.ToLower(host), ".") {
		return ""
	}
	return cname
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

// IsTransient reports whether err is worth retrying: anything that is not a
// definitive "does not exist" answer and not a cancelled context.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
