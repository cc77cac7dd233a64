package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cron"
	"guildkeeper/pkg/dashboard"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/dispatch"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/pipeline"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugins"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
	"guildkeeper/pkg/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and run the bot",
	Long: `Connect to Discord, load every plugin in the plugins directory and
dispatch commands, events and components until interrupted.

When installed as a system service, this is called automatically.`,
	Run: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) {
	if runningAsService() {
		if err := RunService(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running service: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// fx.App.Run handles SIGINT and SIGTERM.
	newApp().Run()
}

// runningAsService reports whether a service manager started the process.
func runningAsService() bool {
	return os.Getenv("INVOCATION_ID") != "" || // systemd
		os.Getenv("_") == "/bin/launchd" || // launchd
		os.Getenv("SERVICE_NAME") != "" // Windows service
}

// coreOptions wires configuration, storage and the plugin system. Plugins
// are loaded when the app starts.
func coreOptions() []fx.Option {
	return []fx.Option{
		fx.Supply(config.Path(configPath)),

		// Core modules
		config.Module,
		logger.Module,
		state.Module,
		settings.Module,

		// Bot modules
		discord.Module,
		registry.Module,
		pipeline.Module,
		cron.Module,
		plugin.Module,
		plugins.Module,
	}
}

// appOptions assembles the bot. Top-level invokes run after module invokes,
// so the session opens after plugins have loaded.
func appOptions() []fx.Option {
	return append(coreOptions(),
		dispatch.Module,
		dashboard.Module,
		fx.Invoke(connect),
	)
}

func newApp(extra ...fx.Option) *fx.App {
	return fx.New(append(appOptions(), extra...)...)
}

// connect opens the Discord session once plugins are loaded and closes it
// before they are unloaded.
func connect(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config, session discord.Session, source *discord.EventSource, reg *registry.Registry, loader *plugin.Loader) {
	ctx, cancel := context.WithCancel(context.Background())
	source.Bind(ctx)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := session.Open(); err != nil {
				cancel()
				return fmt.Errorf("opening Discord session: %w", err)
			}

			names := make([]string, 0)
			for _, info := range loader.List() {
				names = append(names, info.Name)
			}
			log.Info("Bot started",
				zap.Strings("plugins", names),
				zap.Int("commands", len(reg.Commands())),
				zap.Strings("events", reg.Subscriptions()),
				zap.String("command_scope", scopeName(cfg.CommandScope())))
			log.Info("Press Ctrl+C to stop")
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			if err := session.Close(); err != nil {
				log.Warn("Closing Discord session failed", zap.Error(err))
			}
			log.Info("Bot stopped")
			return nil
		},
	})
}

func scopeName(guildID string) string {
	if guildID == "" {
		return "global"
	}
	return "guild:" + guildID
}
