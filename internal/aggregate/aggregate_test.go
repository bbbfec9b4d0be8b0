package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/bughunter/internal/models"
)

func TestClassify(t *testing.T) {
	high := []string{"admin", "dev", "staging", "test", "secure", "vpn", "sql", "db", "backup", "internal", "private", "root", "cpanel", "ADMIN", "dev-api", "mysql01"}
	medium := []string{"api", "portal", "dashboard", "sso", "auth", "login", "beta", "demo", "api.v2"}
	low := []string{"www", "blog", "mail", "cdn", "shop", ""}

	for _, l := range high {
		assert.Equal(t, models.RiskHigh, Classify(l), l)
	}
	for _, l := range medium {
		assert.Equal(t, models.RiskMedium, Classify(l), l)
	}
	for _, l := range low {
		assert.Equal(t, models.RiskLow, Classify(l), l)
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "www", Label("www.example.test", "example.test"))
	assert.Equal(t, "a.b", Label("a.b.example.test", "example.test"))
	assert.Equal(t, "other.test", Label("other.test", "example.test"))
}

func result(name string, origin models.Origin, dns, web bool) models.ProbeResult {
	return models.ProbeResult{
		Candidate: models.Candidate{Name: name, Origin: origin},
		DNSLive:   dns,
		HTTPLive:  web,
	}
}

func TestWildcardGating(t *testing.T) {
	dnsOnly := result("www.example.test", models.OriginWordlist, true, false)

	wild := New(Config{Domain: "example.test", WildcardDetected: true})
	_, ok := wild.Add(dnsOnly)
	assert.False(t, ok, "DNS alone must not qualify under wildcard DNS")

	clean := New(Config{Domain: "example.test", WildcardDetected: false})
	hit, ok := clean.Add(dnsOnly)
	require.True(t, ok)
	assert.Equal(t, "www.example.test", hit.Subdomain)
	assert.Equal(t, models.RiskLow, hit.RiskLevel)
	assert.Equal(t, models.SourceWordlist, hit.Source)
}

func TestQualificationRule(t *testing.T) {
	ct := map[string]bool{"ct.example.test": true}

	tests := []struct {
		name   string
		cfg    Config
		result models.ProbeResult
		want   bool
	}{
		{"web live under wildcard", Config{WildcardDetected: true}, result("a.example.test", models.OriginWordlist, true, true), true},
		{"https only", Config{WildcardDetected: true}, models.ProbeResult{Candidate: models.Candidate{Name: "a.example.test"}, DNSLive: true, HTTPSLive: true}, true},
		{"ct presence alone", Config{WildcardDetected: true, CTNames: ct}, result("ct.example.test", models.OriginCertificateTransparency, false, false), true},
		{"strict ct without dns", Config{CTNames: ct, StrictCT: true}, result("ct.example.test", models.OriginCertificateTransparency, false, false), false},
		{"strict ct with dns under wildcard", Config{WildcardDetected: true, CTNames: ct, StrictCT: true}, result("ct.example.test", models.OriginCertificateTransparency, true, false), true},
		{"nothing live", Config{}, result("a.example.test", models.OriginWordlist, false, false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Domain = "example.test"
			assert.Equal(t, tt.want, New(tt.cfg).Qualifies(tt.result))
		})
	}
}

func TestDeduplicationReportsBoth(t *testing.T) {
	name := "admin.example.test"
	a := New(Config{
		Domain:        "example.test",
		CTNames:       map[string]bool{name: true},
		WordlistNames: map[string]bool{name: true},
	})

	// CT copy first, then wordlist copy of the same name
	hit, ok := a.Add(result(name, models.OriginCertificateTransparency, true, false))
	require.True(t, ok)
	assert.Equal(t, models.SourceBoth, hit.Source)
	assert.Equal(t, models.RiskHigh, hit.RiskLevel)

	_, ok = a.Add(result(name, models.OriginWordlist, true, true))
	assert.False(t, ok)

	assert.Len(t, a.Hits(), 1)
	assert.Equal(t, 1, a.Total())

	s := a.Summary()
	assert.Equal(t, 2, s.Checked)
	assert.Equal(t, 1, s.TotalFound)
	assert.Equal(t, 1, s.Sources[models.SourceBoth])
	assert.Equal(t, 1, s.Risk[models.RiskHigh])
}

func TestSummaryCounts(t *testing.T) {
	a := New(Config{Domain: "example.test", CTNames: map[string]bool{"vpn.example.test": true}})
	a.SetCandidates(4)

	a.Add(result("www.example.test", models.OriginWordlist, true, false))
	a.Add(result("api.example.test", models.OriginWordlist, true, true))
	a.Add(result("gone.example.test", models.OriginWordlist, false, false))
	a.Add(result("vpn.example.test", models.OriginCertificateTransparency, false, false))

	s := a.Summary()
	assert.Equal(t, 4, s.Candidates)
	assert.Equal(t, 4, s.Checked)
	assert.Equal(t, 3, s.TotalFound)
	assert.Equal(t, 2, s.Sources[models.SourceWordlist])
	assert.Equal(t, 1, s.Sources[models.SourceCertificateTransparency])
	assert.Equal(t, map[models.RiskLevel]int{models.RiskLow: 1, models.RiskMedium: 1, models.RiskHigh: 1}, s.Risk)

	// Summary returns a copy
	s.Sources[models.SourceBoth] = 99
	assert.Zero(t, a.Summary().Sources[models.SourceBoth])
}
