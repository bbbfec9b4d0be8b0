package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/metrics"
	"github.com/hakim/bughunter/internal/server"
	"github.com/hakim/bughunter/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with streaming scan endpoints",
	Long: `Start the HTTP server.

Routes:
  GET|POST /api/subdomain-stream   scan as server-sent events
  GET      /ws/subdomain-stream    scan over WebSocket
  GET      /api/sessions           stored sessions (?domain=)
  GET      /api/sessions/:id       one stored session
  DELETE   /api/sessions/:id       forget a session
  POST     /api/dns-lookup         multi-resolver record lookup
  GET      /healthz, /metrics

Examples:
  bughunter serve
  bughunter serve --port 9000 --host 0.0.0.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Flags override config
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		noBanner, _ := cmd.Flags().GetBool("no-banner")

		if !noBanner {
			printBanner()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Step 2: Tracing (no-op without an endpoint)
		shutdownTracing, err := telemetry.Setup(telemetry.Options{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     version,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()

		// Step 3: Store, metrics, runner
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		m := metrics.New()
		runner, err := newRunner(cfg, runnerOptions{
			store:   store,
			metrics: m,
			logger:  logger,
		})
		if err != nil {
			return err
		}

		srv := server.New(server.Config{
			Addr:            cfg.Server.Addr(),
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Debug:           verbose,
		}, server.Deps{
			Runner:  runner,
			Store:   store,
			Lookup:  newLookupResolver(cfg),
			Metrics: m,
			Logger:  logger,
		})

		// Step 4: Serve until interrupted
		color.Green("[+] Listening on http://%s", cfg.Server.Addr())
		fmt.Printf("[*] Store: %s | Concurrency: %d | HTTP verification: %t | CT: %t\n",
			cfg.Store.Backend, cfg.Scan.Concurrency, cfg.Scan.VerifyHTTP, cfg.CT.Enabled)

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}

		fmt.Println("[*] Server stopped")
		return nil
	},
}

func printBanner() {
	fig := figure.NewColorFigure("BugHunter", "doom", "red", true)
	fig.Print()

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Println("════════════════════════════════════════════════")
	_, _ = cyan.Printf("    Subdomain discovery server %s\n", version)
	_, _ = cyan.Println("════════════════════════════════════════════════")
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().Bool("no-banner", false, "do not print the startup banner")
	rootCmd.AddCommand(serveCmd)
}
