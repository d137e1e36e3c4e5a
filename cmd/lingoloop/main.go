package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lingoloop/internal/config"
	"lingoloop/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded configuration, available to every subcommand.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lingoloop",
	Short: "lingoloop - agentic document translation core",
	Long: `lingoloop is the tool-dispatch core of an LLM-driven document
translation agent: per-stage tool policy, streamed block translation with
delta debouncing, proofreading passes, run-settings negotiation, and a
SQLite translation memory.

The subcommands inspect and exercise that core outside a hosting surface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			cfg = config.Default()
		} else {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Initialize(logging.Options{
			Level:       level,
			Development: cfg.Logging.Development,
			Disabled:    cfg.Logging.Disabled,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML); defaults apply when empty")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
