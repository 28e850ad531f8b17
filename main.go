package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	logx "github.com/taxi-assistant/server/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var envFile string
	cfg := &AppConfig{}

	root := &cobra.Command{
		Use:           "taxi-assistant",
		Short:         "Conversational backend of the autonomous taxi",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			*cfg = *loaded
			logx.Init(logx.LoggerOpts{Environment: cfg.Env, Level: cfg.LogLevel})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path of the env file loaded before the environment")

	root.AddCommand(newServeCmd(cfg), newSeedCmd(cfg), newChatCmd(cfg))
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logx.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
