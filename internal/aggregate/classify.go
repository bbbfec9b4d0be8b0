// Package aggregate turns probe results into classified, deduplicated hits
package aggregate

import (
	"strings"

	"github.com/hakim/bughunter/internal/models"
)

var (
	highRiskTerms = []string{
		"admin", "dev", "staging", "test", "secure", "vpn", "sql", "db",
		"backup", "internal", "private", "root", "cpanel",
	}
	mediumRiskTerms = []string{
		"api", "portal", "dashboard", "sso", "auth", "login", "beta", "demo",
	}
)

// Classify assigns a risk tier to a subdomain label by substring match.
// High terms win over medium ones; anything unmatched is low.
func Classify(label string) models.RiskLevel {
	label = strings.ToLower(label)
	for _, term := range highRiskTerms {
		if strings.Contains(label, term) {
			return models.RiskHigh
		}
	}
	for _, term := range mediumRiskTerms {
		if strings.Contains(label, term) {
			return models.RiskMedium
		}
	}
	return models.RiskLow
}

// Label returns the part of name in front of domain, or name itself when it
// does not sit under domain
func Label(name, domain string) string {
	if prefix, ok := strings.CutSuffix(name, "."+domain); ok {
		return prefix
	}
	return name
}
