// Package report renders sessions and session diffs as Markdown
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hakim/bughunter/internal/models"
)

// riskOrder lists tiers from most to least interesting
var riskOrder = []models.RiskLevel{models.RiskHigh, models.RiskMedium, models.RiskLow}

// RenderSession returns the Markdown report for one session
func RenderSession(s *models.ScanSession) string {
	var b strings.Builder

	// Header
	b.WriteString("# Subdomain Discovery Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", s.Domain))
	b.WriteString(fmt.Sprintf("**Session:** %s\n", s.ID))
	b.WriteString(fmt.Sprintf("**Date:** %s\n", s.StartedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("**Status:** %s", s.Status))
	if s.CompletedAt != nil {
		b.WriteString(fmt.Sprintf(" in %s", s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("**Checked:** %d/%d | **Live:** %d\n\n",
		s.Summary.Checked, s.Summary.Candidates, len(s.LiveResults)))

	if s.Error != "" {
		b.WriteString(fmt.Sprintf("> Scan ended with an error: %s\n\n", s.Error))
	}
	if s.WildcardDetected {
		b.WriteString("> Wildcard DNS detected")
		if len(s.WildcardAddrs) > 0 {
			b.WriteString(fmt.Sprintf(" (%s)", strings.Join(s.WildcardAddrs, ", ")))
		}
		b.WriteString(". Hits were confirmed over HTTP or by certificate transparency.\n\n")
	}

	// Sources section
	b.WriteString("## Sources\n\n")
	if len(s.Summary.Sources) > 0 {
		sources := make([]string, 0, len(s.Summary.Sources))
		for src := range s.Summary.Sources {
			sources = append(sources, string(src))
		}
		sort.Strings(sources)
		b.WriteString("| Source | Count |\n")
		b.WriteString("|--------|-------|\n")
		for _, src := range sources {
			b.WriteString(fmt.Sprintf("| %s | %d |\n", src, s.Summary.Sources[models.Source(src)]))
		}
	} else {
		b.WriteString("None found.\n")
	}
	b.WriteString("\n")

	// One section per risk tier
	byRisk := groupByRisk(s.LiveResults)
	for _, level := range riskOrder {
		hits := byRisk[level]
		b.WriteString(fmt.Sprintf("## %s Risk (%d)\n\n", titleCase(string(level)), len(hits)))
		if len(hits) == 0 {
			b.WriteString("None found.\n\n")
			continue
		}
		b.WriteString("| Subdomain | Addresses | Web | Source |\n")
		b.WriteString("|-----------|-----------|-----|--------|\n")
		for _, h := range hits {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", h.Subdomain, formatAddrs(h.Addresses), formatWeb(h), h.Source))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// WriteSessionReport renders s and writes it to outputPath
func WriteSessionReport(s *models.ScanSession, outputPath string) error {
	return writeFile(outputPath, RenderSession(s))
}

// groupByRisk buckets hits by tier, each bucket sorted by name
func groupByRisk(hits []models.ClassifiedHit) map[models.RiskLevel][]models.ClassifiedHit {
	out := make(map[models.RiskLevel][]models.ClassifiedHit, len(riskOrder))
	for _, h := range hits {
		out[h.RiskLevel] = append(out[h.RiskLevel], h)
	}
	for _, bucket := range out {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].Subdomain < bucket[j].Subdomain })
	}
	return out
}

func formatAddrs(addrs []string) string {
	if len(addrs) == 0 {
		return "-"
	}
	return strings.Join(addrs, ", ")
}

// formatWeb shows which schemes answered
func formatWeb(h models.ClassifiedHit) string {
	switch {
	case h.HTTPS && h.HTTP:
		return "https, http"
	case h.HTTPS:
		return "https"
	case h.HTTP:
		return "http"
	default:
		return "-"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeFile(outputPath, content string) error {
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report to %s: %w", outputPath, err)
	}
	return nil
}
