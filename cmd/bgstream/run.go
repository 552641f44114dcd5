package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bgstream/internal/app"
	obs "bgstream/internal/infrastructure/observability"
	"bgstream/pkg/shared/redact"
)

var autostart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the streaming client and its control API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("autostart") {
			cfg.Autostart = autostart
		}
		b := obs.Build()
		logger.Info().
			Str("version", b.Version).
			Str("addr", cfg.Addr).
			Str("service", redact.RedactURL(cfg.ServiceWSURL)).
			Msg("starting bgstream")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := a.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("bgstream stopped with error")
			return err
		}
		logger.Info().Msg("bgstream stopped")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&autostart, "autostart", false, "start a session immediately")
}
