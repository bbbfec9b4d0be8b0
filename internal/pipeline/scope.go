package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfScope is returned when a target is not covered by the scope rules
var ErrOutOfScope = errors.New("target is outside allowed scope")

// ScopeConfig defines allowed scanning boundaries.
// An empty ScopeConfig (no rules) allows any target.
type ScopeConfig struct {
	// AllowedDomains is a list of domain patterns the target must match.
	// Wildcard prefix ("*.example.com") matches any subdomain of example.com.
	// Exact entry ("example.com") matches only that literal value.
	AllowedDomains []string
}

// ValidateTarget checks if a domain is within scope.
// Returns nil if allowed, an error wrapping ErrOutOfScope otherwise.
// A nil ScopeConfig or an empty AllowedDomains allows everything.
func (s *ScopeConfig) ValidateTarget(target string) error {
	if s == nil || len(s.AllowedDomains) == 0 {
		return nil
	}
	for _, pattern := range s.AllowedDomains {
		if domainMatches(target, pattern) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (domains: %s)",
		ErrOutOfScope, target, strings.Join(s.AllowedDomains, ", "))
}

// domainMatches returns true when target satisfies the scope pattern.
//
//   - "*.example.com" matches "foo.example.com" and "a.b.example.com" but
//     not "example.com" itself.
//   - "example.com" matches only the exact string "example.com".
//   - Comparison is case-insensitive and ignores a trailing dot.
func domainMatches(target, pattern string) bool {
	target = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(target)), ".")
	pattern = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(pattern)), ".")

	if !strings.HasPrefix(pattern, "*.") {
		return target == pattern
	}

	suffix := pattern[1:] // e.g. ".example.com"
	return len(target) > len(suffix) && strings.HasSuffix(target, suffix)
}
