// Package main is the entry point for the guildkeeper CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guildkeeper/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "guildkeeper",
	Short: "guildkeeper - a plugin-based Discord bot",
	Long: `guildkeeper is a Discord bot whose commands, events and interactive
components come from plugins that can be loaded, unloaded and reloaded
while the bot is running.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetFullVersion())
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
