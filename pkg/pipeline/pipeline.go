// Package pipeline runs the guild, owner, permission and cooldown gates in front of
// a command handler and contains handler failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guildkeeper/pkg/cooldown"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/permissions"
	"guildkeeper/pkg/registry"
)

// PermissionResolver resolves the capability set of the invoking member.
type PermissionResolver interface {
	Resolve(ctx context.Context, inv *registry.Invocation) (permissions.Set, error)
}

// OwnerCheck reports whether userID is a configured bot owner.
type OwnerCheck func(userID string) bool

// Executor runs commands through the gates.
type Executor struct {
	log             *logger.Logger
	cooldowns       *cooldown.Tracker
	isOwner         OwnerCheck
	resolver        PermissionResolver
	defaultCooldown time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultCooldown replaces registry.DefaultCooldown for commands that leave
// Cooldown at zero.
func WithDefaultCooldown(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultCooldown = d
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(log *logger.Logger, cooldowns *cooldown.Tracker, isOwner OwnerCheck, resolver PermissionResolver, opts ...Option) *Executor {
	if isOwner == nil {
		isOwner = func(string) bool { return false }
	}
	e := &Executor{
		log:             log,
		cooldowns:       cooldowns,
		isOwner:         isOwner,
		resolver:        resolver,
		defaultCooldown: registry.DefaultCooldown,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) cooldownFor(desc *registry.CommandDescriptor) time.Duration {
	if desc.Cooldown == 0 {
		return e.defaultCooldown
	}
	return desc.EffectiveCooldown()
}

// Execute runs inv.Command through the gates and then handler.
//
// A Rejection is answered with its user message and returned. A handler failure
// is logged, answered with a generic message and returned as *HandlerError.
// The cooldown recorded before the handler runs is kept even if it fails.
func (e *Executor) Execute(ctx context.Context, inv *registry.Invocation, handler registry.Handler) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	desc := inv.Command
	log := e.log.WithFields(
		zap.String("invocation", inv.ID),
		zap.String("command", desc.Name),
		zap.String("owner", desc.Owner),
		zap.String("user", inv.UserID),
	)

	if err := e.check(ctx, inv); err != nil {
		var rejection Rejection
		if !errors.As(err, &rejection) {
			log.Error("Pre-check failed", zap.Error(err))
			e.respond(ctx, log, inv, e.genericMessage(inv))
			return err
		}
		log.Debug("Command rejected", zap.Error(err))
		e.respond(ctx, log, inv, rejection.UserMessage())
		return err
	}

	if err := invoke(ctx, inv, handler); err != nil {
		log.Error("Command handler failed", zap.Error(err))
		e.respond(ctx, log, inv, e.genericMessage(inv))
		return &HandlerError{
			Command:      desc.Name,
			Owner:        desc.Owner,
			InvocationID: inv.ID,
			Err:          err,
		}
	}

	log.Debug("Command executed")
	return nil
}

func (e *Executor) check(ctx context.Context, inv *registry.Invocation) error {
	desc := inv.Command

	if desc.GuildOnly && inv.GuildID == "" {
		return &GuildOnlyViolation{Command: desc.Name}
	}

	botOwner := e.isOwner(inv.UserID)
	if desc.OwnerOnly && !botOwner {
		return &OwnerOnlyViolation{Command: desc.Name, UserID: inv.UserID}
	}

	// Member permissions only exist inside a guild.
	if len(desc.Permissions) > 0 && !botOwner && inv.GuildID != "" {
		set := permissions.Set{}
		if e.resolver != nil {
			resolved, err := e.resolver.Resolve(ctx, inv)
			if err != nil {
				return fmt.Errorf("resolving permissions: %w", err)
			}
			set = resolved
		}
		if missing := set.MissingNames(desc.Permissions); len(missing) > 0 {
			return &PermissionDenied{Command: desc.Name, Missing: missing}
		}
	}

	if e.cooldowns != nil {
		if res := e.cooldowns.Check(desc.Name, inv.UserID, e.cooldownFor(desc)); !res.Allowed {
			return &CooldownActive{Command: desc.Name, RetryAfter: res.RetryAfter}
		}
	}
	return nil
}

func invoke(ctx context.Context, inv *registry.Invocation, handler registry.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	if handler == nil {
		return errors.New("command has no handler for this invocation type")
	}
	return handler(ctx, inv)
}

func (e *Executor) genericMessage(inv *registry.Invocation) string {
	if inv.IsInteraction() {
		return ErrorMessageInteraction
	}
	return ErrorMessageText
}

func (e *Executor) respond(ctx context.Context, log *logger.Logger, inv *registry.Invocation, content string) {
	if inv.Responder == nil {
		return
	}
	if err := registry.Respond(ctx, inv.Responder, registry.Reply{Content: content, Ephemeral: true}); err != nil {
		log.Warn("Failed to send reply", zap.Error(err))
	}
}
