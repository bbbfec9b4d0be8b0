package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/bughunter/internal/diff"
	"github.com/hakim/bughunter/internal/models"
)

func sampleSession() *models.ScanSession {
	s := models.NewSession("example.test")
	s.LiveResults = []models.ClassifiedHit{
		{Subdomain: "www.example.test", RiskLevel: models.RiskLow, Source: models.SourceWordlist, Addresses: []string{"192.0.2.1"}, HTTPS: true},
		{Subdomain: "admin.example.test", RiskLevel: models.RiskHigh, Source: models.SourceBoth, Addresses: []string{"192.0.2.2", "192.0.2.3"}},
	}
	s.Summary.Candidates = 10
	s.Summary.Checked = 10
	s.Summary.Sources[models.SourceWordlist] = 1
	s.Summary.Sources[models.SourceBoth] = 1
	s.Finish(models.StatusCompleted, "")
	return s
}

func TestRenderSession(t *testing.T) {
	out := RenderSession(sampleSession())

	assert.Contains(t, out, "**Target:** example.test")
	assert.Contains(t, out, "**Checked:** 10/10 | **Live:** 2")
	assert.Contains(t, out, "| both | 1 |")
	assert.Contains(t, out, "## High Risk (1)")
	assert.Contains(t, out, "| admin.example.test | 192.0.2.2, 192.0.2.3 | - | both |")
	assert.Contains(t, out, "| www.example.test | 192.0.2.1 | https | wordlist |")
	assert.Contains(t, out, "## Medium Risk (0)")
	assert.NotContains(t, out, "Wildcard DNS detected")

	// high tier is rendered before low
	assert.Less(t, strings.Index(out, "## High Risk"), strings.Index(out, "## Low Risk"))
}

func TestRenderSessionWildcardAndError(t *testing.T) {
	s := models.NewSession("example.test")
	s.WildcardDetected = true
	s.WildcardAddrs = []string{"192.0.2.9"}
	s.Finish(models.StatusFailed, "candidate generation: wordlist is empty")

	out := RenderSession(s)
	assert.Contains(t, out, "Wildcard DNS detected (192.0.2.9)")
	assert.Contains(t, out, "Scan ended with an error: candidate generation")
	assert.Contains(t, out, "## Sources\n\nNone found.")
}

func TestWriteDiffReport(t *testing.T) {
	previous := sampleSession()
	current := sampleSession()
	current.LiveResults = []models.ClassifiedHit{
		{Subdomain: "www.example.test", RiskLevel: models.RiskLow, Source: models.SourceBoth},
		{Subdomain: "vpn.example.test", RiskLevel: models.RiskHigh, Source: models.SourceCertificateTransparency},
	}

	path := filepath.Join(t.TempDir(), "diff.md")
	require.NoError(t, WriteDiffReport(diff.ComputeDiff(current, previous), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "| Subdomains | 2 | 2 | +1 / -1 |")
	assert.Contains(t, out, "## New Subdomains (+1)\n\n- vpn.example.test (high, certificate_transparency)")
	assert.Contains(t, out, "## Removed Subdomains (-1)\n\n- admin.example.test (high, both)")
	assert.Contains(t, out, "| www.example.test | wordlist | both |")
	assert.NotContains(t, out, "## Risk Changes")
}

func TestRenderDiffNoChanges(t *testing.T) {
	s := sampleSession()
	out := RenderDiff(diff.ComputeDiff(s, s))
	assert.Contains(t, out, "No changes detected.")
	assert.NotContains(t, out, "## Summary")
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "none", formatChange(0, 0))
	assert.Equal(t, "+3", formatChange(3, 0))
	assert.Equal(t, "+3 / -1", formatChange(3, 1))
	assert.Equal(t, "-2", formatChange(0, 2))
}
