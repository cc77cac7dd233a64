package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugins"
	"guildkeeper/pkg/registry"
)

var pluginsForce bool

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect and prepare the plugins directory",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugin folders and their manifests",
	Run:   runPluginsList,
}

var pluginsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the bundled plugin manifests",
	Long: `Write the manifests of the bundled plugins into the plugins directory.
Existing folders are kept unless --force is given.`,
	Run: runPluginsInit,
}

func init() {
	pluginsInitCmd.Flags().BoolVar(&pluginsForce, "force", false, "overwrite existing manifests")

	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsCmd.AddCommand(pluginsInitCmd)
	rootCmd.AddCommand(pluginsCmd)
}

// cliSetup loads configuration without requiring a bot token.
func cliSetup() (*config.Config, *logger.Logger) {
	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.NewValidator(false).Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:       logger.LevelWarn,
		Development: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, log
}

func runPluginsList(cmd *cobra.Command, args []string) {
	cfg, log := cliSetup()

	catalog := plugin.NewCatalog()
	if err := plugins.Register(catalog); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	loader := plugin.NewLoader(log, cfg.Plugins.Dir, catalog, registry.NewRegistry(log, nil), plugin.WithConfig(cfg))

	found := loader.Discover()
	if len(found) == 0 {
		fmt.Printf("No plugins in %s\n", cfg.Plugins.Dir)
		fmt.Println("Run 'guildkeeper plugins init' to create the bundled ones.")
		return
	}

	fmt.Printf("Found %d plugin folder(s) in %s:\n\n", len(found), cfg.Plugins.Dir)
	for _, d := range found {
		status := "✓"
		if !d.Enabled {
			status = "✗"
		}
		if d.Error != "" {
			fmt.Printf("[!] %-20s %s\n", d.Folder, d.Error)
			continue
		}
		fmt.Printf("[%s] %-20s %s %s\n", status, d.Folder, d.Name, d.Version)
	}
}

func runPluginsInit(cmd *cobra.Command, args []string) {
	cfg, log := cliSetup()

	written, err := plugins.Seed(log, cfg.Plugins.Dir, pluginsForce)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(written) == 0 {
		fmt.Println("All bundled plugins already exist, nothing written")
		return
	}
	fmt.Printf("Wrote %d plugin(s) to %s: %v\n", len(written), cfg.Plugins.Dir, written)
}
