// Package cmd provides CLI commands for tricount-sync.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/config"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/pathutil"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tricount-sync",
	Short: "Import Tricount expenses into Firefly III",
	Long: `tricount-sync imports the expenses of a Tricount registry into
Firefly III as withdrawals, exactly once.

It supports:
- Reconciling a local dedup ledger with what Firefly III already holds
- Creating missing categories from Tricount categories
- Exporting the registry to CSV
- Recording run history in SQLite
- Dry-run mode for testing

Example:
  tricount-sync sync --tricount-key tXXXX
  tricount-sync stats
  tricount-sync ledger --prune`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debug)
	},
}

// setupLogging installs the default text logger on stderr.
func setupLogging(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// loadConfig loads configuration and honours DEBUG from the .env file.
func loadConfig() *config.Config {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	if cfg.Debug && !debug {
		setupLogging(true)
	}
	return cfg
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// newPathResolver builds the path resolver for the configured data directory.
func newPathResolver(cfg *config.Config) *pathutil.PathResolver {
	return pathutil.New(pathutil.Config{
		DataDir:      cfg.Sync.DataDir,
		LedgerPath:   cfg.Sync.LedgerPath,
		DatabasePath: cfg.Sync.DBPath,
		ExportDir:    cfg.Sync.ExportDir,
	})
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
