package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/registry"
)

var (
	deployGuild  string
	deployGlobal bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy-commands",
	Short: "Publish slash commands to Discord",
	Long: `Load every plugin, collect the slash commands they register and
overwrite the application's command set on Discord.

Commands go to the development guild when dev_mode is set, otherwise they
are published globally.

Examples:
  guildkeeper deploy-commands
  guildkeeper deploy-commands --guild 123456789012345678
  guildkeeper deploy-commands --global`,
	Run: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployGuild, "guild", "", "deploy to this guild instead of the configured scope")
	deployCmd.Flags().BoolVar(&deployGlobal, "global", false, "deploy globally even in dev mode")
	rootCmd.AddCommand(deployCmd)
}

// deployTarget picks the guild to publish to; empty means global.
func deployTarget(cfg *config.Config, guild string, global bool) (string, error) {
	guild = strings.TrimSpace(guild)
	if global && guild != "" {
		return "", errors.New("--guild and --global are mutually exclusive")
	}
	if global {
		return "", nil
	}
	if guild != "" {
		return guild, nil
	}
	return cfg.CommandScope(), nil
}

func runDeploy(cmd *cobra.Command, args []string) {
	var deployErr error

	app := fx.New(append(coreOptions(),
		fx.NopLogger,
		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config, session discord.Session, reg *registry.Registry) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					deployErr = deploy(log, cfg, session, reg)
					return nil
				},
			})
		}),
	)...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting: %v\n", err)
		os.Exit(1)
	}
	if err := app.Stop(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping: %v\n", err)
	}

	if deployErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", deployErr)
		os.Exit(1)
	}
}

func deploy(log *logger.Logger, cfg *config.Config, session discord.Session, reg *registry.Registry) error {
	if strings.TrimSpace(cfg.Bot.ClientID) == "" {
		return errors.New("bot.client_id is required to deploy commands")
	}

	guildID, err := deployTarget(cfg, deployGuild, deployGlobal)
	if err != nil {
		return err
	}

	deployed, err := discord.DeployCommands(log, session, cfg.Bot.ClientID, guildID, reg.SlashCommands())
	if err != nil {
		return err
	}

	log.Info("Slash commands deployed",
		zap.Int("count", len(deployed)),
		zap.String("scope", scopeName(guildID)))
	fmt.Printf("Deployed %d command(s) to %s\n", len(deployed), scopeName(guildID))
	return nil
}
