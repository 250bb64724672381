// Command agentrun runs agent trees described by a config file, either once
// from the terminal or behind the HTTP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "agentrun",
		Short:         "Run and serve hierarchical AI agents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (TOML or YAML, default $XDG_CONFIG_HOME/agentrun/config.toml)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSessionsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
