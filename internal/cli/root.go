// Package cli provides the command-line interface for linkmesh.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/linkmesh/linkmesh/internal/api"
	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/logging"
)

var (
	// Global flags
	cfgFile    string
	apiBaseURL string
	verbose    bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
)

// Version information - set by main package at startup via LDFLAGS.
var (
	Version   = "v1.0.0-dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "linkmesh",
		Short: "LinkMesh - internal linking analysis client",
		Long: `LinkMesh ` + Version + ` - Built: ` + BuildTime + `
Client for the LinkMesh internal linking analysis engine.

Upload content exports, tune and submit an analysis, follow the job live
over the streaming channel (with automatic polling fallback), and fetch
the suggested internal links when it completes.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "Analysis engine base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = Version + " (" + BuildTime + ")"

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newSegmentsCmd())

	return rootCmd
}

// Execute runs the CLI with signal-aware cancellation.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootContext = ctx

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetLogger returns the global logger, initializing it if needed.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return logger
}

// GetContext returns the signal-aware root context.
func GetContext() context.Context {
	if rootContext == nil {
		rootContext = context.Background()
	}
	return rootContext
}

// getConfig loads the configuration and applies flag overrides.
func getConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	return cfg, nil
}

// getAPIClient builds the engine client from the effective configuration.
func getAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
