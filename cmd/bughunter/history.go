package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show session history for a domain",
	Long: `Display a formatted table of past discovery sessions for a target domain.

Sessions are listed newest-first. Each row shows the session ID (truncated),
start time, final status, hit count and how many candidates were checked.

History needs a persistent store: set store.backend to bolt.
Use --limit to cap the number of rows shown (default: 10).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		domain, _ := cmd.Flags().GetString("domain")
		limit, _ := cmd.Flags().GetInt("limit")
		domain = strings.ToLower(strings.TrimSpace(domain))

		// Step 2: Open store
		if cfg.Store.Backend != "bolt" {
			fmt.Println("[!] Warning: the memory store does not outlive the process; set store.backend: bolt to keep history")
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		// Step 3: List sessions (newest first)
		sessions, err := store.List(domain)
		if err != nil {
			return fmt.Errorf("listing sessions for %s: %w", domain, err)
		}

		if len(sessions) == 0 {
			fmt.Printf("No session history found for %s\n", domain)
			return nil
		}

		// Step 4: Apply limit
		if limit > 0 && len(sessions) > limit {
			sessions = sessions[:limit]
		}

		// Step 5: Print formatted table
		const separator = "────────────────────────────────────────────────────────────────────────"

		label := domain
		if label == "" {
			label = "all domains"
		}
		fmt.Printf("\nSession History for %s\n", label)
		fmt.Println(separator)
		fmt.Printf("  %-3s  %-12s  %-20s  %-10s  %-6s  %s\n", "#", "Session ID", "Started", "Status", "Found", "Checked")
		fmt.Println(separator)

		for i, s := range sessions {
			fmt.Printf("  %-3d  %-12s  %-20s  %-10s  %-6d  %s\n",
				i+1,
				shortID(s.ID),
				s.StartedAt.UTC().Format("2006-01-02 15:04"),
				formatStatus(s.Status),
				s.TotalFound,
				formatChecked(s.Summary))
		}

		fmt.Println(separator)
		fmt.Printf("Total: %d session(s)\n\n", len(sessions))

		return nil
	},
}

// shortID returns the first 8 characters of a UUID followed by "..." for
// compact table display. Falls back to the full ID when shorter than 8 chars.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// formatStatus marks sessions that never reached a terminal state
func formatStatus(s models.SessionStatus) string {
	if !s.Terminal() {
		return string(s) + "*"
	}
	return string(s)
}

// formatChecked renders checked/candidates, or "-" before probing started
func formatChecked(s models.Summary) string {
	if s.Candidates == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", s.Checked, s.Candidates)
}

func init() {
	historyCmd.Flags().StringP("domain", "d", "", "Target domain (empty lists every domain)")
	historyCmd.Flags().Int("limit", 10, "Maximum number of sessions to display")
	rootCmd.AddCommand(historyCmd)
}
