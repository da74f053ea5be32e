package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/taskchain/internal/logging"
)

// app is the state shared by subcommands once the root pre-run has loaded
// settings.
var app struct {
	settings Settings
	logger   *slog.Logger
}

var rootCmd = &cobra.Command{
	Use:           "taskchain",
	Short:         "Taskchain runs action-graph programs",
	Long:          `Taskchain builds programs from action graphs (invoke, sequence, concurrency, sync, trigger, catch, if) and runs them on a bounded scheduler.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		s, err := loadSettings(path, os.Getenv)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			s.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-format") {
			s.LogFormat, _ = cmd.Flags().GetString("log-format")
		}
		app.settings = s
		app.logger = logging.New(cmd.ErrOrStderr(), s.LogLevel, s.LogFormat)
		slog.SetDefault(app.logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "settings file (default ~/.taskchain/settings.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
}
