package plugin

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cron"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// Context is handed to Initialize. Everything registered through it is
// stamped with the plugin's name, so unloading removes it again.
type Context struct {
	owner    string
	folder   string
	manifest *Manifest

	registry  *registry.Registry
	scheduler *cron.Manager
	loader    *Loader

	// Settings persists per-guild and global plugin settings.
	Settings *settings.Store
	// Session is nil when the bot runs without a gateway connection.
	Session discord.Session
	Config  *config.Config
	Log     *logger.Logger

	mu       sync.Mutex
	commands []string
	events   []string
	jobs     []string
}

func (l *Loader) newContext(owner, folder string, m *Manifest) *Context {
	return &Context{
		owner:     owner,
		folder:    folder,
		manifest:  m,
		registry:  l.registry,
		scheduler: l.scheduler,
		loader:    l,
		Settings:  l.settings,
		Session:   l.session,
		Config:    l.config,
		Log:       l.log.WithFields(zap.String("plugin", owner)),
	}
}

// Owner returns the plugin name everything is registered under.
func (c *Context) Owner() string { return c.owner }

// Folder returns the plugin's directory name.
func (c *Context) Folder() string { return c.folder }

// Manifest returns the parsed plugin.yaml.
func (c *Context) Manifest() *Manifest { return c.manifest }

// Registry gives read access to every registered command, for help-style commands.
func (c *Context) Registry() *registry.Registry { return c.registry }

// Plugins returns the loader, for management commands.
func (c *Context) Plugins() *Loader { return c.loader }

// RegisterCommand registers desc under the plugin's name.
func (c *Context) RegisterCommand(desc registry.CommandDescriptor) bool {
	if !c.registry.RegisterCommand(desc, c.owner) {
		return false
	}
	c.mu.Lock()
	c.commands = append(c.commands, desc.Name)
	c.mu.Unlock()
	return true
}

// RegisterEvent subscribes desc under the plugin's name.
func (c *Context) RegisterEvent(desc registry.EventDescriptor) bool {
	if !c.registry.RegisterEvent(desc, c.owner) {
		return false
	}
	c.mu.Lock()
	c.events = append(c.events, desc.Name)
	c.mu.Unlock()
	return true
}

// Schedule runs fn on a cron schedule until the plugin is unloaded.
func (c *Context) Schedule(name, schedule string, fn cron.JobFunc) error {
	if c.scheduler == nil {
		return fmt.Errorf("scheduler not available")
	}
	if _, err := c.scheduler.AddJob(c.owner, name, schedule, fn); err != nil {
		return err
	}
	c.mu.Lock()
	c.jobs = append(c.jobs, name)
	c.mu.Unlock()
	return nil
}

// Option returns a manifest option.
func (c *Context) Option(key string) (interface{}, bool) {
	if c.manifest == nil || c.manifest.Options == nil {
		return nil, false
	}
	v, ok := c.manifest.Options[key]
	return v, ok
}

// OptionString returns a string manifest option or def.
func (c *Context) OptionString(key, def string) string {
	v, ok := c.Option(key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// OptionInt returns an integer manifest option or def.
func (c *Context) OptionInt(key string, def int) int {
	v, ok := c.Option(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func (c *Context) registered() (commands, events, jobs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commands), len(c.events), len(c.jobs)
}
