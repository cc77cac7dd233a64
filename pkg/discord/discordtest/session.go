// Package discordtest provides an in-memory discord.Session for tests.
package discordtest

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Session records outgoing calls and dispatches events to registered handlers.
type Session struct {
	mu sync.Mutex

	handlers map[int]interface{}
	nextID   int

	Opened, Closed bool

	Responses  []*discordgo.InteractionResponse
	Edits      []*discordgo.WebhookEdit
	Followups  []*discordgo.WebhookParams
	Sent       []*discordgo.MessageSend
	SentTo     []string
	Typing     []string
	RoleAdds   [][3]string
	Status     string
	Deployed   map[string][]*discordgo.ApplicationCommand
	MessageIDs int

	Guilds      map[string]*discordgo.Guild
	Permissions map[string]int64 // userID -> channel permissions
	User        *discordgo.User
	Ping        time.Duration

	// RespondErr, when set, is returned by InteractionRespond.
	RespondErr error
}

// NewSession creates an empty fake session.
func NewSession() *Session {
	return &Session{
		handlers:    make(map[int]interface{}),
		Deployed:    make(map[string][]*discordgo.ApplicationCommand),
		Guilds:      make(map[string]*discordgo.Guild),
		Permissions: make(map[string]int64),
		User:        &discordgo.User{ID: "bot", Username: "guildkeeper", Bot: true},
		Ping:        42 * time.Millisecond,
	}
}

func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opened = true
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

func (s *Session) AddHandler(handler interface{}) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// HandlerCount returns the number of registered handlers.
func (s *Session) HandlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Dispatch calls every handler whose event parameter accepts ev, synchronously.
// It returns how many handlers were called.
func (s *Session) Dispatch(ev interface{}) int {
	s.mu.Lock()
	handlers := make([]interface{}, 0, len(s.handlers))
	for i := 1; i <= s.nextID; i++ {
		if h, ok := s.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	s.mu.Unlock()

	called := 0
	evValue := reflect.ValueOf(ev)
	for _, h := range handlers {
		fn := reflect.ValueOf(h)
		if fn.Kind() != reflect.Func || fn.Type().NumIn() != 2 {
			continue
		}
		if !evValue.Type().AssignableTo(fn.Type().In(1)) {
			continue
		}
		fn.Call([]reflect.Value{reflect.Zero(fn.Type().In(0)), evValue})
		called++
	}
	return called
}

func (s *Session) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RespondErr != nil {
		return s.RespondErr
	}
	s.Responses = append(s.Responses, resp)
	return nil
}

func (s *Session) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Edits = append(s.Edits, edit)
	return &discordgo.Message{}, nil
}

func (s *Session) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Followups = append(s.Followups, data)
	return &discordgo.Message{}, nil
}

func (s *Session) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content})
}

func (s *Session) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, data)
	s.SentTo = append(s.SentTo, channelID)
	s.MessageIDs++
	return &discordgo.Message{ID: fmt.Sprintf("m%d", s.MessageIDs), ChannelID: channelID, Content: data.Content}, nil
}

func (s *Session) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content := ""
	if m.Content != nil {
		content = *m.Content
	}
	s.Sent = append(s.Sent, &discordgo.MessageSend{Content: content})
	s.SentTo = append(s.SentTo, m.Channel)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel, Content: content}, nil
}

func (s *Session) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Typing = append(s.Typing, channelID)
	return nil
}

func (s *Session) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RoleAdds = append(s.RoleAdds, [3]string{guildID, userID, roleID})
	return nil
}

func (s *Session) UserChannelPermissions(userID, _ string, _ ...discordgo.RequestOption) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Permissions[userID], nil
}

func (s *Session) ApplicationCommandBulkOverwrite(_ string, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deployed[guildID] = cmds
	return cmds, nil
}

func (s *Session) UpdateCustomStatus(status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	return nil
}

func (s *Session) CachedGuild(guildID string) (*discordgo.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.Guilds[guildID]
	if !ok {
		return nil, errors.New("unknown guild " + guildID)
	}
	return g, nil
}

func (s *Session) BotUser() *discordgo.User { return s.User }

func (s *Session) Latency() time.Duration { return s.Ping }

// LastContent returns the content of the most recent response, followup or
// channel message, whichever was recorded last in that order of preference.
func (s *Session) LastContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(s.Followups) > 0:
		return s.Followups[len(s.Followups)-1].Content
	case len(s.Responses) > 0 && s.Responses[len(s.Responses)-1].Data != nil:
		return s.Responses[len(s.Responses)-1].Data.Content
	case len(s.Sent) > 0:
		return s.Sent[len(s.Sent)-1].Content
	}
	return ""
}
