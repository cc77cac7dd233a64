package discord

import (
	"context"
	"fmt"

	"guildkeeper/pkg/permissions"
	"guildkeeper/pkg/registry"
)

// Resolver computes the permission set of the invoking member.
type Resolver struct {
	session Session
}

// NewResolver creates a resolver.
func NewResolver(session Session) *Resolver {
	return &Resolver{session: session}
}

// Resolve returns the member's channel permissions and whether they own the guild.
// Interactions carry precomputed member permissions; text commands ask the session.
func (r *Resolver) Resolve(ctx context.Context, inv *registry.Invocation) (permissions.Set, error) {
	var set permissions.Set
	if inv.GuildID == "" {
		return set, nil
	}

	guild, err := r.session.CachedGuild(inv.GuildID)
	if err != nil {
		return set, fmt.Errorf("fetching guild %s: %w", inv.GuildID, err)
	}
	set.IsGuildOwner = guild.OwnerID == inv.UserID
	if set.IsGuildOwner {
		return set, nil
	}

	if inv.Interaction != nil && inv.Interaction.Member != nil {
		set.Granted = inv.Interaction.Member.Permissions
		return set, nil
	}

	granted, err := r.session.UserChannelPermissions(inv.UserID, inv.ChannelID)
	if err != nil {
		return set, fmt.Errorf("fetching permissions of %s: %w", inv.UserID, err)
	}
	set.Granted = granted
	return set, nil
}
