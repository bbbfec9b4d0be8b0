package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:   "bughunter",
	Short: "Concurrent subdomain discovery with live verification",
	Long: `BugHunter discovers subdomains of a target domain by combining a wordlist
with certificate transparency logs, then verifies each candidate with DNS and
optionally HTTP under a bounded concurrency ceiling.

Wildcard DNS is detected up front so that names which only "resolve" because
the zone answers everything are not reported as live. Results can be streamed
to a browser over server-sent events or WebSocket (serve), or printed in the
terminal as they arrive (discover).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		skipConfig := map[string]bool{
			"init":    true,
			"help":    true,
			"version": true,
		}

		if skipConfig[cmd.Name()] {
			logger = newLogger(config.DefaultConfig().Log, verbose)
			return nil
		}

		// Missing config files fall back to defaults; an explicit --config must exist
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger = newLogger(cfg.Log, verbose)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: search for bughunter.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.Version = version
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		return err
	}
	return nil
}
