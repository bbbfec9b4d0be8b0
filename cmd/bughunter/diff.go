package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/diff"
	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/report"
	"github.com/hakim/bughunter/internal/storage"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two sessions and report what changed",
	Long: `Compare a session against an earlier one for the same domain.

Reports subdomains that appeared or disappeared, hits whose risk tier or source
changed, and whether wildcard detection flipped.

When --current is empty the newest completed session is used; when --previous
is empty the completed session before it is used.

Examples:
  bughunter diff -d example.com
  bughunter diff -d example.com --current 3f2a... --previous 9c1b... --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		domain, _ := cmd.Flags().GetString("domain")
		currentID, _ := cmd.Flags().GetString("current")
		previousID, _ := cmd.Flags().GetString("previous")
		jsonOut, _ := cmd.Flags().GetBool("json")
		reportPath, _ := cmd.Flags().GetString("output")
		domain = strings.ToLower(strings.TrimSpace(domain))

		// Step 2: Open store
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		// Step 3: Resolve both sessions
		current, previous, err := pickSessions(store, domain, currentID, previousID)
		if err != nil {
			return err
		}
		if previous == nil {
			fmt.Printf("[!] No previous session found for comparison\n")
		}

		// Step 4: Compute diff
		result := diff.ComputeDiff(current, previous)

		if reportPath != "" {
			if err := report.WriteDiffReport(result, reportPath); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "[+] Diff report written to %s\n", reportPath)
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		// Step 5: Print summary
		printDiff(result)
		return nil
	},
}

// pickSessions loads the sessions to compare, defaulting to the two newest
// completed sessions of domain
func pickSessions(store storage.SessionStore, domain, currentID, previousID string) (*models.ScanSession, *models.ScanSession, error) {
	var completed []*models.ScanSession
	if currentID == "" || previousID == "" {
		sessions, err := store.List(domain)
		if err != nil {
			return nil, nil, fmt.Errorf("listing sessions: %w", err)
		}
		for _, s := range sessions {
			if s.Status == models.StatusCompleted {
				completed = append(completed, s)
			}
		}
	}

	var current *models.ScanSession
	if currentID != "" {
		s, err := store.Get(currentID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading session %s: %w", currentID, err)
		}
		current = s
	} else {
		if len(completed) == 0 {
			return nil, nil, fmt.Errorf("no completed session for %s. Run 'bughunter discover -d %s' first", domain, domain)
		}
		current = completed[0]
	}

	if previousID != "" {
		s, err := store.Get(previousID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading session %s: %w", previousID, err)
		}
		return current, s, nil
	}

	for _, s := range completed {
		if s.ID != current.ID && s.StartedAt.Before(current.StartedAt) {
			return current, s, nil
		}
	}
	return current, nil, nil
}

func printDiff(d *diff.DiffResult) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)

	fmt.Printf("[*] Current:  %s (%d hits)\n", shortID(d.CurrentID), d.CurrentCount)
	if d.PreviousID != "" {
		fmt.Printf("[*] Previous: %s (%d hits)\n", shortID(d.PreviousID), d.PreviousCount)
	}
	fmt.Println()

	for _, h := range d.NewHits {
		_, _ = added.Printf("  + %-50s %s\n", h.Subdomain, h.RiskLevel)
	}
	for _, h := range d.RemovedHits {
		_, _ = removed.Printf("  - %-50s %s\n", h.Subdomain, h.RiskLevel)
	}
	for _, c := range d.RiskChanged {
		fmt.Printf("  ~ %-50s risk %s -> %s\n", c.Subdomain, c.Previous.RiskLevel, c.Current.RiskLevel)
	}
	for _, c := range d.SourceChanged {
		fmt.Printf("  ~ %-50s source %s -> %s\n", c.Subdomain, c.Previous.Source, c.Current.Source)
	}
	if d.WildcardChanged {
		color.Yellow("[!] Wildcard DNS detection changed between sessions")
	}

	fmt.Println()
	if !d.HasChanges() {
		fmt.Println("[+] No changes")
		return
	}
	fmt.Printf("[+] Diff complete!\n")
	fmt.Printf("    Subdomains: +%d new, -%d removed, %d risk changed, %d source changed\n",
		len(d.NewHits), len(d.RemovedHits), len(d.RiskChanged), len(d.SourceChanged))
}

func init() {
	diffCmd.Flags().StringP("domain", "d", "", "Target domain (required unless both IDs are given)")
	diffCmd.Flags().String("current", "", "Current session ID (default: newest completed)")
	diffCmd.Flags().String("previous", "", "Previous session ID (default: the completed session before current)")
	diffCmd.Flags().Bool("json", false, "Print the diff as JSON")
	diffCmd.Flags().StringP("output", "o", "", "Also write a Markdown diff report to this path")
	diffCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		current, _ := cmd.Flags().GetString("current")
		previous, _ := cmd.Flags().GetString("previous")
		if domain == "" && (current == "" || previous == "") {
			return errors.New("--domain is required unless both --current and --previous are set")
		}
		return nil
	}
	rootCmd.AddCommand(diffCmd)
}
