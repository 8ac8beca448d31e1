package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capgate-project/capgate/pkg/config"
)

// NewCheckConfigCmd creates the check-config command.
func NewCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate a configuration file",
		Long:  `Parse and validate the configuration file without starting the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.Parse(configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			fmt.Printf("Config OK: %d categories (%d tier-1, %d default-safe), latency budget %dms\n",
				len(cfg.Categories), len(cfg.TierOneIDs()), len(cfg.SafeDefaultIDs()), cfg.LatencyBudgetMs)
			return nil
		},
	}
}
