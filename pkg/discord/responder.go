package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"guildkeeper/pkg/registry"
)

// InteractionResponder answers an interaction. It tracks acknowledgement so a
// second initial response is never attempted.
type InteractionResponder struct {
	session     Session
	interaction *discordgo.Interaction

	mu    sync.Mutex
	acked bool
}

// NewInteractionResponder creates a responder for interaction.
func NewInteractionResponder(session Session, interaction *discordgo.Interaction) *InteractionResponder {
	return &InteractionResponder{session: session, interaction: interaction}
}

func responseData(r registry.Reply) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content:    r.Content,
		Embeds:     r.Embeds,
		Components: r.Components,
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}

func (r *InteractionResponder) respond(resp *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acked {
		return fmt.Errorf("interaction %s already acknowledged", r.interaction.ID)
	}
	if err := r.session.InteractionRespond(r.interaction, resp); err != nil {
		return fmt.Errorf("responding to interaction: %w", err)
	}
	r.acked = true
	return nil
}

// Reply sends the initial response.
func (r *InteractionResponder) Reply(_ context.Context, reply registry.Reply) error {
	return r.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(reply),
	})
}

// Defer acknowledges the interaction. Component interactions defer as a message
// update, everything else as a pending reply.
func (r *InteractionResponder) Defer(_ context.Context, ephemeral bool) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if r.interaction.Type == discordgo.InteractionMessageComponent {
		resp.Type = discordgo.InteractionResponseDeferredMessageUpdate
	}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return r.respond(resp)
}

// Followup sends an additional message.
func (r *InteractionResponder) Followup(_ context.Context, reply registry.Reply) error {
	params := &discordgo.WebhookParams{
		Content:    reply.Content,
		Embeds:     reply.Embeds,
		Components: reply.Components,
	}
	if reply.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := r.session.FollowupMessageCreate(r.interaction, true, params); err != nil {
		return fmt.Errorf("sending followup: %w", err)
	}
	return nil
}

// Update edits the originating message of a component interaction, or the
// original response of an already acknowledged command.
func (r *InteractionResponder) Update(_ context.Context, reply registry.Reply) error {
	if r.Acknowledged() {
		content := reply.Content
		edit := &discordgo.WebhookEdit{Content: &content}
		if reply.Embeds != nil {
			edit.Embeds = &reply.Embeds
		}
		if reply.Components != nil {
			edit.Components = &reply.Components
		}
		if _, err := r.session.InteractionResponseEdit(r.interaction, edit); err != nil {
			return fmt.Errorf("editing interaction response: %w", err)
		}
		return nil
	}

	respType := discordgo.InteractionResponseUpdateMessage
	if r.interaction.Type != discordgo.InteractionMessageComponent {
		respType = discordgo.InteractionResponseChannelMessageWithSource
	}
	data := responseData(reply)
	if data.Components == nil && respType == discordgo.InteractionResponseUpdateMessage {
		data.Components = []discordgo.MessageComponent{}
	}
	return r.respond(&discordgo.InteractionResponse{Type: respType, Data: data})
}

// Acknowledged reports whether the interaction has been answered or deferred.
func (r *InteractionResponder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

// Modal opens a modal dialog as the initial response.
func (r *InteractionResponder) Modal(customID, title string, components ...discordgo.MessageComponent) error {
	return r.respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: components,
		},
	})
}

// MessageResponder answers a text command in the channel it came from.
// Ephemeral has no meaning for channel messages and is ignored.
type MessageResponder struct {
	session Session
	message *discordgo.Message

	mu        sync.Mutex
	lastReply *discordgo.Message
	acked     bool
}

// NewMessageResponder creates a responder for message.
func NewMessageResponder(session Session, message *discordgo.Message) *MessageResponder {
	return &MessageResponder{session: session, message: message}
}

func (r *MessageResponder) send(reply registry.Reply, reference bool) error {
	data := &discordgo.MessageSend{
		Content:    reply.Content,
		Embeds:     reply.Embeds,
		Components: reply.Components,
	}
	if reference {
		data.Reference = r.message.Reference()
		data.AllowedMentions = &discordgo.MessageAllowedMentions{RepliedUser: false}
	}
	msg, err := r.session.ChannelMessageSendComplex(r.message.ChannelID, data)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	r.mu.Lock()
	r.lastReply = msg
	r.acked = true
	r.mu.Unlock()
	return nil
}

// Reply answers the command message.
func (r *MessageResponder) Reply(_ context.Context, reply registry.Reply) error {
	return r.send(reply, true)
}

// Defer shows the typing indicator.
func (r *MessageResponder) Defer(context.Context, bool) error {
	if err := r.session.ChannelTyping(r.message.ChannelID); err != nil {
		return fmt.Errorf("sending typing: %w", err)
	}
	r.mu.Lock()
	r.acked = true
	r.mu.Unlock()
	return nil
}

// Followup sends another message to the channel.
func (r *MessageResponder) Followup(_ context.Context, reply registry.Reply) error {
	return r.send(reply, false)
}

// Update edits the last reply, or replies when there is none.
func (r *MessageResponder) Update(ctx context.Context, reply registry.Reply) error {
	r.mu.Lock()
	last := r.lastReply
	r.mu.Unlock()

	if last == nil {
		return r.Reply(ctx, reply)
	}
	edit := discordgo.NewMessageEdit(last.ChannelID, last.ID).SetContent(reply.Content)
	if reply.Embeds != nil {
		edit.Embeds = &reply.Embeds
	}
	if reply.Components != nil {
		edit.Components = &reply.Components
	}
	msg, err := r.session.ChannelMessageEditComplex(edit)
	if err != nil {
		return fmt.Errorf("editing message: %w", err)
	}
	r.mu.Lock()
	r.lastReply = msg
	r.mu.Unlock()
	return nil
}

// Acknowledged reports whether anything has been sent.
func (r *MessageResponder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}
