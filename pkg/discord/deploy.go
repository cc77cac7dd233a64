package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildkeeper/pkg/logger"
)

// DeployCommands replaces the application's slash commands. An empty guildID
// deploys globally; a guild ID deploys to that guild only, which applies instantly.
func DeployCommands(log *logger.Logger, session Session, appID, guildID string, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	if appID == "" {
		return nil, fmt.Errorf("application (client) ID is required to deploy commands")
	}
	if cmds == nil {
		cmds = []*discordgo.ApplicationCommand{}
	}

	scope := "global"
	if guildID != "" {
		scope = "guild:" + guildID
	}
	log.Info("Deploying application commands", zap.String("scope", scope), zap.Int("count", len(cmds)))

	created, err := session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		return nil, fmt.Errorf("deploying commands (%s): %w", scope, err)
	}

	log.Info("Deployed application commands", zap.String("scope", scope), zap.Int("count", len(created)))
	return created, nil
}
