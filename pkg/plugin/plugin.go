// Package plugin discovers, loads, unloads and reloads plugins and feeds their
// commands and events into the registry.
package plugin

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"guildkeeper/pkg/registry"
)

// Plugin is the required shape of every plugin.
type Plugin interface {
	Name() string
	Version() string
	// Initialize registers the plugin's commands, events and jobs through pc.
	Initialize(ctx context.Context, pc *Context) error
}

// Shutdowner is implemented by plugins that release resources on unload.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Describer supplies metadata shown by help and the dashboard.
type Describer interface {
	Description() string
	Author() string
}

// ButtonHandler handles button clicks whose custom ID names the plugin.
type ButtonHandler interface {
	HandleButton(ctx context.Context, c *Component) error
}

// SelectMenuHandler handles select menu choices.
type SelectMenuHandler interface {
	HandleSelectMenu(ctx context.Context, c *Component) error
}

// ModalSubmitHandler handles modal submissions.
type ModalSubmitHandler interface {
	HandleModalSubmit(ctx context.Context, c *Component) error
}

// ComponentKind identifies the kind of a component interaction.
type ComponentKind int

const (
	KindButton ComponentKind = iota
	KindSelectMenu
	KindModal
)

// String returns the user-facing name of the control.
func (k ComponentKind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindSelectMenu:
		return "select menu"
	case KindModal:
		return "form"
	default:
		return "component"
	}
}

// Component is a routed component interaction.
type Component struct {
	Kind   ComponentKind
	Owner  string
	Action string
	Data   string

	// Values holds the chosen options of a select menu.
	Values []string
	// Fields holds modal text inputs by custom ID.
	Fields map[string]string

	GuildID   string
	ChannelID string
	UserID    string

	Interaction *discordgo.Interaction
	Responder   registry.Responder
}

// CustomID builds an "owner:action:data" component identifier.
func CustomID(owner, action string, data ...string) string {
	id := owner + ":" + action
	if len(data) > 0 {
		id += ":" + strings.Join(data, ":")
	}
	return id
}

// SupportedKinds lists the component kinds p can handle.
func SupportedKinds(p Plugin) []ComponentKind {
	var kinds []ComponentKind
	if _, ok := p.(ButtonHandler); ok {
		kinds = append(kinds, KindButton)
	}
	if _, ok := p.(SelectMenuHandler); ok {
		kinds = append(kinds, KindSelectMenu)
	}
	if _, ok := p.(ModalSubmitHandler); ok {
		kinds = append(kinds, KindModal)
	}
	return kinds
}
