package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/discovery"
	"github.com/hakim/bughunter/internal/resolver"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up DNS records across several resolvers",
	Long: `Query A, AAAA, CNAME, MX, TXT, NS, SOA and SRV records for a domain against
every configured resolver (Google, Cloudflare, Quad9 and OpenDNS when none are
configured) and flag answers that differ between resolvers.

Examples:
  bughunter lookup -d example.com
  bughunter lookup -d example.com --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")
		jsonOut, _ := cmd.Flags().GetBool("json")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		domain, err := discovery.ValidateDomain(domain)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		report := newLookupResolver(cfg).Lookup(ctx, domain)

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		printLookup(report)
		return nil
	},
}

func printLookup(report *resolver.LookupReport) {
	fmt.Printf("\nDNS records for %s\n\n", report.Domain)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Type\tRecords")
	fmt.Fprintln(w, "----\t-------")
	for _, set := range report.Results {
		records := "-"
		if len(set.Records) > 0 {
			records = strings.Join(set.Records, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\n", set.Type, records)
	}
	w.Flush()

	warn := color.New(color.FgYellow)
	for _, set := range report.Results {
		for _, note := range set.Notes {
			_, _ = warn.Printf("[!] %s: %s\n", set.Type, note)
		}
	}
	if len(report.SecurityNotes) > 0 {
		fmt.Println()
		for _, note := range report.SecurityNotes {
			_, _ = warn.Printf("[!] %s\n", note)
		}
	}
	fmt.Println()
}

func init() {
	lookupCmd.Flags().StringP("domain", "d", "", "Domain to look up (required)")
	lookupCmd.Flags().Bool("json", false, "Print the report as JSON")
	lookupCmd.Flags().Duration("timeout", 15*time.Second, "Overall lookup timeout")
	lookupCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(lookupCmd)
}
