package pipeline

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ErrorMessageInteraction is shown when a slash handler fails.
	ErrorMessageInteraction = "There was an error while executing this command!"
	// ErrorMessageText is shown when a text handler fails.
	ErrorMessageText = "There was an error trying to execute that command!"
)

// Rejection is a pre-check failure. Its user message is safe to show.
type Rejection interface {
	error
	UserMessage() string
}

// GuildOnlyViolation rejects a guild-only command used outside a guild.
type GuildOnlyViolation struct {
	Command string
}

func (e *GuildOnlyViolation) Error() string {
	return fmt.Sprintf("command %s used outside a guild", e.Command)
}

func (e *GuildOnlyViolation) UserMessage() string {
	return "This command can only be used in a server."
}

// OwnerOnlyViolation rejects an owner-only command used by someone else.
type OwnerOnlyViolation struct {
	Command string
	UserID  string
}

func (e *OwnerOnlyViolation) Error() string {
	return fmt.Sprintf("command %s is owner-only, invoked by %s", e.Command, e.UserID)
}

func (e *OwnerOnlyViolation) UserMessage() string {
	return "This command can only be used by the bot owner."
}

// PermissionDenied lists the permissions the member is missing.
type PermissionDenied struct {
	Command string
	Missing []string
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("command %s: missing permissions %s", e.Command, strings.Join(e.Missing, ", "))
}

func (e *PermissionDenied) UserMessage() string {
	return "You don't have permission to use this command. Missing: " + strings.Join(e.Missing, ", ")
}

// CooldownActive rejects an invocation inside the cooldown window.
type CooldownActive struct {
	Command    string
	RetryAfter time.Duration
}

func (e *CooldownActive) Error() string {
	return fmt.Sprintf("command %s on cooldown for %s", e.Command, e.RetryAfter)
}

func (e *CooldownActive) UserMessage() string {
	return fmt.Sprintf("Please wait %.1f more second(s) before reusing the `%s` command.",
		e.RetryAfter.Seconds(), e.Command)
}

// HandlerError wraps a failure of the command handler itself.
type HandlerError struct {
	Command      string
	Owner        string
	InvocationID string
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("command %s (owner %s, invocation %s): %v", e.Command, e.Owner, e.InvocationID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
