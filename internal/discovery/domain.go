package discovery

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const maxDomainLength = 253

// ValidationError reports a target domain that was rejected before any
// network activity took place
type ValidationError struct {
	Domain string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Domain == "" {
		return "invalid domain: " + e.Reason
	}
	return fmt.Sprintf("invalid domain %q: %s", e.Domain, e.Reason)
}

// NormalizeDomain cleans user input into a bare lower-case hostname.
// It strips a URL scheme, any path, port or trailing dot.
func NormalizeDomain(input string) string {
	d := strings.TrimSpace(strings.ToLower(input))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")

	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}

	return strings.TrimSuffix(d, ".")
}

// ValidateDomain normalizes input and checks that it is a syntactically
// plausible DNS name that sits below a public suffix.
func ValidateDomain(input string) (string, error) {
	d := NormalizeDomain(input)

	if d == "" {
		return "", &ValidationError{Reason: "domain is required"}
	}
	if len(d) > maxDomainLength {
		return "", &ValidationError{Domain: d, Reason: fmt.Sprintf("longer than %d characters", maxDomainLength)}
	}
	if !strings.Contains(d, ".") {
		return "", &ValidationError{Domain: d, Reason: "must contain at least one dot"}
	}

	for _, label := range strings.Split(d, ".") {
		if err := validateLabel(label); err != "" {
			return "", &ValidationError{Domain: d, Reason: err}
		}
	}

	// A bare public suffix (co.uk, github.io) has no registrable owner to scan
	if suffix, _ := publicsuffix.PublicSuffix(d); suffix == d {
		return "", &ValidationError{Domain: d, Reason: "is a public suffix"}
	}

	return d, nil
}

func validateLabel(label string) string {
	if label == "" {
		return "contains an empty label"
	}
	if len(label) > 63 {
		return fmt.Sprintf("label %q is longer than 63 characters", label)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Sprintf("label %q starts or ends with a hyphen", label)
	}
	for _, r := range label {
		if !isLabelChar(r) {
			return fmt.Sprintf("label %q contains invalid character %q", label, r)
		}
	}
	return ""
}

func isLabelChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}
