// Package cooldown rate-limits command invocations per command and user.
package cooldown

import (
	"sync"
	"time"
)

// Result is the outcome of a Check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

type key struct {
	command string
	user    string
}

// Tracker records cooldown expiries keyed by (command, user).
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[key]time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:     time.Now,
		entries: make(map[key]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Check reports whether user may invoke command now. When allowed, a new window
// of length d starts. command must be the canonical name, never an alias.
func (t *Tracker) Check(command, user string, d time.Duration) Result {
	if d <= 0 {
		return Result{Allowed: true}
	}

	k := key{command: command, user: user}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if expiry, ok := t.entries[k]; ok {
		if now.Before(expiry) {
			return Result{RetryAfter: expiry.Sub(now)}
		}
		delete(t.entries, k)
	}

	t.entries[k] = now.Add(d)
	return Result{Allowed: true}
}

// Reset clears the cooldown of user for command.
func (t *Tracker) Reset(command, user string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key{command: command, user: user})
}

// Sweep drops expired entries and returns how many were removed.
func (t *Tracker) Sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, expiry := range t.entries {
		if !now.Before(expiry) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries, expired or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
