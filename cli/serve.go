package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mdmgate/mdmgate/pkg/config"
	"github.com/mdmgate/mdmgate/pkg/logger"
	"github.com/mdmgate/mdmgate/server"
)

// ServeCmd runs the MCP server until interrupted.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE:  runServe,
	}

	cmd.Flags().String("transport", "", "MCP transport: stdio or sse (overrides config)")
	cmd.Flags().String("host", "", "Listen host for the SSE transport (overrides config)")
	cmd.Flags().Int("port", 0, "Listen port for the SSE transport (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, logger.GetDefault())

	cfg, err := config.NewService().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info("starting mdmgate",
		"transport", cfg.Server.Transport,
		"platform", cfg.MDM.ServerURL,
		"default_tenant", cfg.MDM.DefaultTenant)

	return server.New(cfg).Run(ctx)
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("transport") {
		transport, err := cmd.Flags().GetString("transport")
		if err != nil {
			return fmt.Errorf("failed to get transport flag: %w", err)
		}
		if transport != "stdio" && transport != "sse" {
			return fmt.Errorf("invalid transport %q: must be stdio or sse", transport)
		}
		cfg.Server.Transport = transport
	}
	if cmd.Flags().Changed("host") {
		host, err := cmd.Flags().GetString("host")
		if err != nil {
			return fmt.Errorf("failed to get host flag: %w", err)
		}
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, err := cmd.Flags().GetInt("port")
		if err != nil {
			return fmt.Errorf("failed to get port flag: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}
