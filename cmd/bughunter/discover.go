package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/pipeline"
	"github.com/hakim/bughunter/internal/report"
	"github.com/hakim/bughunter/internal/storage"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover live subdomains for a target domain",
	Long: `Run one discovery session in the terminal.

Candidates come from the wordlist (built-in unless scan.wordlist is set) and
certificate transparency logs. Each candidate is resolved, and web-checked
unless --no-http is given. Hits are printed as soon as they are confirmed.

With --output-dir the session is also written to:
  {output_dir}/{domain}_{timestamp}/session.json
  {output_dir}/{domain}_{timestamp}/subdomains.txt

Examples:
  bughunter discover -d example.com
  bughunter discover -d example.com --preset quick
  bughunter discover -d example.com --no-ct --concurrency 40 --output-dir scans`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Read flags
		domain, _ := cmd.Flags().GetString("domain")
		presetName, _ := cmd.Flags().GetString("preset")
		noHTTP, _ := cmd.Flags().GetBool("no-http")
		noCT, _ := cmd.Flags().GetBool("no-ct")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		outputDir, _ := cmd.Flags().GetString("output-dir")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		scopeFlag, _ := cmd.Flags().GetString("scope-domains")
		webhook, _ := cmd.Flags().GetString("notify-webhook")
		jsonOut, _ := cmd.Flags().GetBool("json")

		if outputDir == "" {
			outputDir = cfg.Scan.OutputDir
		}

		// Step 2: Store and runner
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runner, err := newRunner(cfg, runnerOptions{
			store:   store,
			scope:   splitCSV(scopeFlag),
			webhook: webhook,
			logger:  logger,
		})
		if err != nil {
			return err
		}

		// Step 3: Validate before any network activity
		domain, err = runner.Validate(domain)
		if err != nil {
			return err
		}

		// Step 4: Build the request (preset, then explicit flags)
		req := runner.DefaultRequest(domain)
		if presetName != "" {
			preset, err := pipeline.GetPreset(presetName)
			if err != nil {
				return err
			}
			fmt.Printf("[*] Using preset: %s (%s)\n", preset.Name, preset.Description)
			preset.Apply(&req)
		}
		if noHTTP {
			req.VerifyHTTP = false
		}
		if noCT {
			req.UseCT = false
		}
		if cmd.Flags().Changed("concurrency") {
			req.Concurrency = concurrency
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		// Step 5: Run with a terminal emitter
		out := io.Writer(os.Stdout)
		if jsonOut {
			out = io.Discard
		}
		term := newTerminalEmitter(out, !jsonOut)
		req.OnProgress = term.progress

		fmt.Fprintf(out, "[*] Starting subdomain discovery for %s\n", domain)
		session, runErr := runner.Run(ctx, req, term)
		term.finish()

		if session == nil {
			return runErr
		}

		// Step 6: Persist to disk
		if outputDir != "" {
			dir, err := storage.WriteSessionDir(outputDir, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[!] Warning: failed to write session output: %v\n", err)
			} else {
				if err := report.WriteSessionReport(session, filepath.Join(dir, "report.md")); err != nil {
					fmt.Fprintf(os.Stderr, "[!] Warning: failed to write report: %v\n", err)
				}
				fmt.Fprintf(out, "[+] Session written to %s\n", dir)
			}
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(session); err != nil {
				return fmt.Errorf("encoding session: %w", err)
			}
		} else {
			printSummary(session)
		}

		if runErr != nil && !errors.Is(runErr, pipeline.ErrClientGone) {
			return runErr
		}
		return nil
	},
}

// terminalEmitter prints session events to a terminal with a progress bar
type terminalEmitter struct {
	out     io.Writer
	showBar bool
	bar     *progressbar.ProgressBar
	high    *color.Color
	medium  *color.Color
	low     *color.Color
	warn    *color.Color
}

func newTerminalEmitter(out io.Writer, showBar bool) *terminalEmitter {
	return &terminalEmitter{
		out:     out,
		showBar: showBar,
		high:    color.New(color.FgRed, color.Bold),
		medium:  color.New(color.FgYellow),
		low:     color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
	}
}

func (t *terminalEmitter) Emit(event models.Event) error {
	t.clearBar()

	switch data := event.Data.(type) {
	case models.StatusPayload:
		fmt.Fprintf(t.out, "[*] %s\n", data.Message)
	case models.ClassifiedHit:
		c := t.low
		switch data.RiskLevel {
		case models.RiskHigh:
			c = t.high
		case models.RiskMedium:
			c = t.medium
		}
		_, _ = c.Fprintf(t.out, "[+] %-50s %-6s %s\n", data.Subdomain, data.RiskLevel, data.Source)
	case models.CompletePayload:
		fmt.Fprintf(t.out, "[+] %s\n", data.Message)
	case models.ErrorPayload:
		_, _ = t.warn.Fprintf(t.out, "[!] %s\n", data.Message)
	}
	return nil
}

// progress is called once per checked candidate
func (t *terminalEmitter) progress(checked, total int) {
	if !t.showBar {
		return
	}
	if t.bar == nil {
		t.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Checking"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = t.bar.Set(checked)
}

func (t *terminalEmitter) clearBar() {
	if t.bar != nil {
		_ = t.bar.Clear()
	}
}

func (t *terminalEmitter) finish() {
	if t.bar != nil {
		_ = t.bar.Finish()
	}
}

func printSummary(s *models.ScanSession) {
	elapsed := time.Duration(0)
	if s.CompletedAt != nil {
		elapsed = s.CompletedAt.Sub(s.StartedAt)
	}

	fmt.Println()
	if s.Status == models.StatusCompleted {
		color.Green("[+] Discovery complete!")
	} else {
		color.Yellow("[!] Discovery %s: %s", s.Status, s.Error)
	}
	fmt.Printf("    Session ID: %s\n", s.ID)
	fmt.Printf("    Checked: %d/%d | Found: %d | Wildcard: %t | Elapsed: %s\n",
		s.Summary.Checked, s.Summary.Candidates, s.TotalFound, s.WildcardDetected, elapsed.Round(time.Millisecond))
	fmt.Printf("    Risk: high=%d medium=%d low=%d\n",
		s.Summary.Risk[models.RiskHigh], s.Summary.Risk[models.RiskMedium], s.Summary.Risk[models.RiskLow])
	fmt.Printf("    Sources: wordlist=%d ct=%d both=%d\n",
		s.Summary.Sources[models.SourceWordlist],
		s.Summary.Sources[models.SourceCertificateTransparency],
		s.Summary.Sources[models.SourceBoth])
}

func init() {
	discoverCmd.Flags().StringP("domain", "d", "", "Target domain to discover subdomains for (required)")
	discoverCmd.Flags().String("preset", "", "Scan preset: quick, standard, thorough")
	discoverCmd.Flags().Bool("no-http", false, "DNS-only verification")
	discoverCmd.Flags().Bool("no-ct", false, "Skip certificate transparency lookup")
	discoverCmd.Flags().IntP("concurrency", "c", 0, "Probes in flight (1-50, default from config)")
	discoverCmd.Flags().StringP("output-dir", "o", "", "Write session.json and subdomains.txt under this directory")
	discoverCmd.Flags().Duration("timeout", 30*time.Minute, "Overall session timeout (0 disables)")
	discoverCmd.Flags().String("scope-domains", "", "Comma-separated allowed domain patterns (e.g. example.com,*.example.com)")
	discoverCmd.Flags().String("notify-webhook", "", "POST a JSON summary to this URL when the session ends")
	discoverCmd.Flags().Bool("json", false, "Print the final session as JSON instead of live output")

	discoverCmd.MarkFlagRequired("domain")

	rootCmd.AddCommand(discoverCmd)
}
