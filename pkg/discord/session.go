// Package discord adapts a discordgo session to the registry, pipeline and dispatcher.
package discord

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Intents requested on connect.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// ErrNoToken is returned when the bot token is empty.
var ErrNoToken = errors.New("discord bot token is required")

// Session is the subset of *discordgo.Session used by guildkeeper, plus a few
// state helpers. Tests substitute their own implementation.
type Session interface {
	Open() error
	Close() error

	// AddHandler registers a discordgo event handler and returns its remover.
	AddHandler(handler interface{}) func()

	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)

	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error

	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)

	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)

	UpdateCustomStatus(status string) error

	// CachedGuild returns the guild from the state cache, falling back to REST.
	CachedGuild(guildID string) (*discordgo.Guild, error)
	// BotUser returns the connected bot user, nil before the ready event.
	BotUser() *discordgo.User
	// Latency returns the last gateway heartbeat latency.
	Latency() time.Duration
}

// Client wraps *discordgo.Session to satisfy Session.
type Client struct {
	*discordgo.Session
}

// NewClient creates a session for a bot token with the guildkeeper intents.
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	return &Client{Session: s}, nil
}

// CachedGuild returns the guild from the state cache, falling back to REST.
func (c *Client) CachedGuild(guildID string) (*discordgo.Guild, error) {
	if c.State != nil {
		if g, err := c.State.Guild(guildID); err == nil {
			return g, nil
		}
	}
	return c.Guild(guildID)
}

// BotUser returns the connected bot user.
func (c *Client) BotUser() *discordgo.User {
	if c.State == nil {
		return nil
	}
	return c.State.User
}

// Latency returns the last gateway heartbeat latency.
func (c *Client) Latency() time.Duration {
	return c.HeartbeatLatency()
}
