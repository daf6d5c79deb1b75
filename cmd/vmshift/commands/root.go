// Package commands implements the vmshift CLI.
package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ErrNothingSucceeded is returned when an orchestrator run ended without a
// single successful job. Its summary has already been printed.
var ErrNothingSucceeded = errors.New("no job succeeded")

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	cfgFile     string
	tuiEnabled  bool
	stateDir    string
	metricsAddr string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "vmshift",
	Short: "Move VM templates in and out of the cloud",
	Long: `vmshift downloads template VMs, uploads VM archives and copies VMs between
regions, keeping as many exports and imports in flight as the account allows.

Credentials come from ~/.vmshift.yaml or VMSHIFT_USERNAME / VMSHIFT_API_TOKEN.

Use "vmshift [command] --help" for more information about a command.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.vmshift.yaml)")
	rootCmd.PersistentFlags().BoolVar(&tuiEnabled, "tui", false, "show an interactive progress dashboard")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "directory for the transfer journal (overrides state_dir)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics_addr)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (overrides log_level)")

	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(jobsCmd)
}
