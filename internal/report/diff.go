package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/bughunter/internal/diff"
	"github.com/hakim/bughunter/internal/models"
)

// RenderDiff returns the Markdown report for the delta between two sessions
func RenderDiff(result *diff.DiffResult) string {
	var b strings.Builder

	b.WriteString("# Scan Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", result.Domain))
	b.WriteString(fmt.Sprintf("**Date:** %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC")))

	// If there are zero changes across all categories, short-circuit.
	if !result.HasChanges() {
		b.WriteString("No changes detected.\n")
		return b.String()
	}

	writeDiffSummaryTable(&b, result)
	writeHitList(&b, "New Subdomains", "+", result.NewHits)
	writeHitList(&b, "Removed Subdomains", "-", result.RemovedHits)
	writeChangeTable(&b, "Risk Changes", result.RiskChanged, func(h models.ClassifiedHit) string { return string(h.RiskLevel) })
	writeChangeTable(&b, "Source Changes", result.SourceChanged, func(h models.ClassifiedHit) string { return string(h.Source) })

	if result.WildcardChanged {
		b.WriteString("## Wildcard DNS\n\n")
		b.WriteString("Wildcard detection changed between the two sessions.\n\n")
	}

	return b.String()
}

// WriteDiffReport renders result and writes it to outputPath
func WriteDiffReport(result *diff.DiffResult, outputPath string) error {
	return writeFile(outputPath, RenderDiff(result))
}

// ---------------------------------------------------------------------------
// Section writers
// ---------------------------------------------------------------------------

func writeDiffSummaryTable(b *strings.Builder, r *diff.DiffResult) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Previous | Current | Change |\n")
	b.WriteString("|----------|----------|---------|--------|\n")
	b.WriteString(fmt.Sprintf("| Subdomains | %d | %d | %s |\n",
		r.PreviousCount, r.CurrentCount, formatChange(len(r.NewHits), len(r.RemovedHits))))
	b.WriteString("\n")
}

// writeHitList renders a bullet list of hits. Skipped when empty.
func writeHitList(b *strings.Builder, title, sign string, hits []models.ClassifiedHit) {
	if len(hits) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(hits)))
	for _, h := range hits {
		b.WriteString(fmt.Sprintf("- %s (%s, %s)\n", h.Subdomain, h.RiskLevel, h.Source))
	}
	b.WriteString("\n")
}

// writeChangeTable renders attribute changes. Skipped when empty.
func writeChangeTable(b *strings.Builder, title string, changes []diff.HitChange, attr func(models.ClassifiedHit) string) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%d)\n\n", title, len(changes)))
	b.WriteString("| Subdomain | Previous | Current |\n")
	b.WriteString("|-----------|----------|---------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", c.Subdomain, attr(c.Previous), attr(c.Current)))
	}
	b.WriteString("\n")
}

// formatChange returns a human-readable change string such as "+3 / -1".
func formatChange(added, removed int) string {
	if added == 0 && removed == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	return strings.Join(parts, " / ")
}
