package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/config"
)

const version = "0.3.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dagsched",
	Short: "dagsched polls DAG info records and starts the runs that are due",
	Long: `dagsched keeps one scheduling record per DAG definition and starts a run
whenever a record is valid, unexpired, not already running and its
next_start_time has passed. Failed records are retried only when skip_failed is set.

Common workflows:

  Run the poller and the HTTP API:
    dagsched serve

  Load DAG definitions from a seed file:
    dagsched seed dags.yaml

  Run a single poll and exit:
    dagsched poll

Configuration is read from ./dagsched.yaml or --config, and every key can be
overridden with a DAGSCHED_ environment variable, e.g. DAGSCHED_STORE_DRIVER=sqlite.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./dagsched.yaml)")

	rootCmd.AddCommand(serveCmd, pollCmd, dumpCmd, seedCmd, migrateCmd, eventsCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// signalContext is canceled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
