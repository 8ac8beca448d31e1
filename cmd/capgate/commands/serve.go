// Package commands holds the capgate CLI subcommands.
package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capgate-project/capgate/pkg/apiserver"
	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/decision"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the decision API server",
		Long: `Start the HTTP server exposing the decision endpoint, outcome reporting,
operator status and Prometheus metrics. Shuts down gracefully on SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			port, _ := cmd.Flags().GetInt("port")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			engine, err := decision.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return apiserver.NewServer(engine, port).Run(ctx)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	return cmd
}
