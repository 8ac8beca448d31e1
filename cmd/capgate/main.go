package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capgate-project/capgate/cmd/capgate/commands"
	"github.com/capgate-project/capgate/pkg/observability/logging"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if _, err := logging.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
	}
	defer logging.Sync()

	rootCmd := &cobra.Command{
		Use:   "capgate",
		Short: "CapGate capability loading decision engine",
		Long: `capgate decides, per request, which optional capability categories to
load. It fuses keyword, context, environment and history signals into
calibrated per-category scores and walks a five-level fallback chain, so
every request gets a usable category set even when detection fails.

Common workflows:
  capgate serve                       # Start the decision API server
  capgate check-config -c config.yaml # Validate a configuration file
  capgate decide "run the tests"      # Evaluate one query locally`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(commands.NewServeCmd())
	rootCmd.AddCommand(commands.NewCheckConfigCmd())
	rootCmd.AddCommand(commands.NewDecideCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
