package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hakim/bughunter/internal/config"
	"github.com/hakim/bughunter/internal/storage"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize bughunter with default configuration",
	Long: `Creates a default configuration file (bughunter.yaml), the output directory
when one is configured, and the session database when the bolt backend is used.

This is typically the first command you run when setting up bughunter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(initDir, "bughunter.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}

		if err := storage.EnsureDir(initDir); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		// Create default config
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("Created %s with default configuration\n", configPath)

		// Load the config we just created to get paths
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if loaded.Scan.OutputDir != "" {
			if err := storage.EnsureDir(loaded.Scan.OutputDir); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			fmt.Printf("Created output directory: %s\n", loaded.Scan.OutputDir)
		}

		// Initialize database
		if loaded.Store.Backend == "bolt" {
			store, err := storage.NewBoltStore(loaded.Store.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer store.Close()
			fmt.Printf("Initialized database: %s\n", loaded.Store.DBPath)
		} else {
			fmt.Println("Sessions are kept in memory; set store.backend to bolt to keep history")
		}

		fmt.Println()
		fmt.Println("BugHunter initialized successfully!")
		fmt.Println("Run 'bughunter check' to verify your environment.")

		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
