package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/config"
)

// checkProbeHost is a name every working resolver can answer
const checkProbeHost = "example.com"

// checkResult is one row of the environment report
type checkResult struct {
	Name     string
	OK       bool
	Detail   string
	Required bool
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration, resolvers and data sources",
	Long: `Verify that the configuration is valid, the wordlist loads, DNS resolution
works through the configured and public resolvers, the certificate
transparency endpoint is reachable and the session store opens.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		results := runChecks(ctx, cfg)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "Check\tStatus\tDetail")
		fmt.Fprintln(w, "-----\t------\t------")

		passed := 0
		requiredFailed := 0
		for _, r := range results {
			status := "[-]"
			if r.OK {
				status = "[+]"
				passed++
			} else if r.Required {
				requiredFailed++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Detail)
		}
		w.Flush()

		fmt.Println()
		fmt.Printf("Summary: %d/%d checks passed", passed, len(results))
		if requiredFailed > 0 {
			fmt.Printf(", %d required checks failed", requiredFailed)
		}
		fmt.Println()

		if requiredFailed > 0 {
			return fmt.Errorf("required checks failed")
		}
		return nil
	},
}

// runChecks runs every environment check in order
func runChecks(ctx context.Context, c *config.Config) []checkResult {
	var results []checkResult

	// Configuration
	if err := c.Validate(); err != nil {
		results = append(results, checkResult{Name: "config", Detail: err.Error(), Required: true})
	} else {
		results = append(results, checkResult{Name: "config", OK: true, Detail: "valid", Required: true})
	}

	// Wordlist
	words, err := loadWords(c)
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "wordlist", Detail: err.Error(), Required: true})
	case len(words) == 0:
		results = append(results, checkResult{Name: "wordlist", Detail: "no entries", Required: true})
	default:
		source := "built-in"
		if c.Scan.Wordlist != "" {
			source = c.Scan.Wordlist
		}
		results = append(results, checkResult{Name: "wordlist", OK: true, Detail: fmt.Sprintf("%d entries (%s)", len(words), source), Required: true})
	}

	// Scan resolver
	ans, err := newResolver(c).Resolve(ctx, checkProbeHost)
	if err != nil {
		results = append(results, checkResult{Name: "resolver", Detail: err.Error()})
	} else {
		results = append(results, checkResult{Name: "resolver", OK: true, Detail: fmt.Sprintf("%s -> %v", checkProbeHost, ans.Addresses)})
	}

	// Each lookup resolver
	lookup := newLookupResolver(c)
	for _, server := range lookup.Servers() {
		name := "dns " + server.Name
		resp, err := lookup.Query(ctx, server, checkProbeHost, dns.TypeA)
		switch {
		case err != nil:
			results = append(results, checkResult{Name: name, Detail: err.Error()})
		case resp.Rcode != dns.RcodeSuccess:
			results = append(results, checkResult{Name: name, Detail: dns.RcodeToString[resp.Rcode]})
		default:
			results = append(results, checkResult{Name: name, OK: true, Detail: fmt.Sprintf("%d answers", len(resp.Answer))})
		}
	}

	// Certificate transparency
	if c.CT.Enabled {
		results = append(results, checkEndpoint(ctx, c.CT.Endpoint, c.CT.Timeout))
	} else {
		results = append(results, checkResult{Name: "ct endpoint", OK: true, Detail: "disabled"})
	}

	// Session store
	store, err := openStore(c)
	if err != nil {
		results = append(results, checkResult{Name: "store", Detail: err.Error(), Required: true})
	} else {
		store.Close()
		detail := c.Store.Backend
		if c.Store.Backend == "bolt" {
			detail += " " + c.Store.DBPath
		}
		results = append(results, checkResult{Name: "store", OK: true, Detail: detail, Required: true})
	}

	return results
}

// checkEndpoint reports whether the CT endpoint answers at all; any HTTP
// response counts as reachable
func checkEndpoint(ctx context.Context, endpoint string, timeout time.Duration) checkResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := checkResult{Name: "ct endpoint"}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	resp.Body.Close()

	res.OK = true
	res.Detail = fmt.Sprintf("%s (%d)", endpoint, resp.StatusCode)
	return res
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
