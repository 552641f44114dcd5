package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "bgstream/internal/infrastructure/config"
	obs "bgstream/internal/infrastructure/observability"
)

var (
	cfgFile  string
	logLevel string

	cfg    cfgpkg.Config
	logger *zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bgstream",
	Short: "Stream camera frames to a background-replacement service",
	Long: `bgstream captures frames, sends them to a remote background-replacement
service over a websocket and renders the processed frames it returns.
A local control API starts and stops sessions, records the processed
stream and exposes telemetry.`,
	SilenceUsage: true,
	Version:      obs.Build().Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfgFile = os.Getenv("CONFIG_FILE")
		}
		v, err := cfgpkg.New(cfgFile)
		if err != nil {
			return err
		}
		if err := v.BindPFlag("log_level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		cfg = cfgpkg.Load(v)
		if cfg.DevMode {
			logger = obs.NewLoggerTo(zerolog.ConsoleWriter{Out: os.Stderr}, cfg.LogLevel)
		} else {
			logger = obs.NewLogger(cfg.LogLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	rootCmd.AddCommand(runCmd, uploadCmd, backgroundsCmd)
}
