// Package rdbcore wires the schema, storage-planning and execution
// packages into a command-line entry point: a root cobra command with
// plan and exec subcommands running one script against a schema-driven
// store.
package rdbcore

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muskanmahajan37/RefineDB/logging"
)

var log = logging.New()

var logLevel string

// RootCommand is the base CLI command every subcommand attaches to.
var RootCommand = &cobra.Command{
	Use:   "rdbcore",
	Short: "Execute TwScript graphs against a schema-driven key-value store",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		viper.SetEnvPrefix("rdbcore")
		viper.AutomaticEnv()
		if !cmd.Flags().Changed("log-level") {
			if v := viper.GetString("log_level"); v != "" {
				logLevel = v
			}
		}
		switch logLevel {
		case "debug":
			log.SetLevel(logging.Debug)
		case "warn":
			log.SetLevel(logging.Warn)
		case "error":
			log.SetLevel(logging.Error)
		default:
			log.SetLevel(logging.Info)
		}
		return nil
	},
}

func init() {
	RootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	RootCommand.AddCommand(planCommand)
	RootCommand.AddCommand(execCommand)
	RootCommand.AddCommand(versionCommand)
}
