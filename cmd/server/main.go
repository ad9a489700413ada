package main

import (
	"fmt"
	"os"

	"github.com/damon-houk/exchange-rate-service/internal/config"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	cfgFile string
	envFile string
}

func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(o.cfgFile, o.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot load config: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	log := logger.NewJSONLogger(os.Stdout, level)
	logger.SetDefaultLogger(log)

	return cfg, log, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "exchange-rate-service",
		Short:         "Serve daily currency exchange rates backed by a local store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to a dotenv file (optional)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newBackfillCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the service version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.GetDefaultLogger().Error("Command failed", logger.Fields{"error": err.Error()})
		os.Exit(1)
	}
}
