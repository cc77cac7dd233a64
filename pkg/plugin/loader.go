package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cron"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// ReservedOwner is the owner name used by the framework's own registrations.
const ReservedOwner = "core"

// State is the lifecycle state of a loaded plugin.
type State string

const (
	StateLoading   State = "loading"
	StateActive    State = "active"
	StateUnloading State = "unloading"
)

// Info is a snapshot of a loaded plugin.
type Info struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Folder      string    `json:"folder"`
	State       State     `json:"state"`
	LoadedAt    time.Time `json:"loaded_at"`
	Commands    []string  `json:"commands"`
	Components  []string  `json:"components"`
}

// Discovery describes a plugin folder found on disk.
type Discovery struct {
	Folder  string `json:"folder"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Enabled bool   `json:"enabled"`
	Loaded  bool   `json:"loaded"`
	Error   string `json:"error,omitempty"`
}

// EventType names a lifecycle notification.
type EventType string

const (
	EventLoaded   EventType = "loaded"
	EventUnloaded EventType = "unloaded"
	EventFailed   EventType = "failed"
)

// LifecycleEvent is published after every load, unload and failed load.
type LifecycleEvent struct {
	Type   EventType `json:"type"`
	Plugin string    `json:"plugin,omitempty"`
	Folder string    `json:"folder"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

type record struct {
	name     string
	folder   string
	manifest *Manifest
	handle   Plugin
	pctx     *Context
	state    State
	loadedAt time.Time
}

// Loader owns the set of loaded plugins. Lifecycle operations are serialized;
// lookups may run concurrently with them.
type Loader struct {
	log     *logger.Logger
	dir     string
	catalog *Catalog

	registry  *registry.Registry
	scheduler *cron.Manager
	settings  *settings.Store
	session   discord.Session
	config    *config.Config

	opMu    sync.Mutex
	mu      sync.RWMutex
	records map[string]*record

	subsMu  sync.RWMutex
	subs    map[int]func(LifecycleEvent)
	nextSub int
}

// Option configures a Loader.
type Option func(*Loader)

// WithScheduler lets plugins schedule cron jobs.
func WithScheduler(m *cron.Manager) Option {
	return func(l *Loader) { l.scheduler = m }
}

// WithSettings lets plugins persist settings.
func WithSettings(s *settings.Store) Option {
	return func(l *Loader) { l.settings = s }
}

// WithSession hands plugins the Discord session.
func WithSession(s discord.Session) Option {
	return func(l *Loader) { l.session = s }
}

// WithConfig hands plugins the bot configuration and enables plugins.disabled.
func WithConfig(c *config.Config) Option {
	return func(l *Loader) { l.config = c }
}

// NewLoader creates a loader for the plugin folders under dir.
func NewLoader(log *logger.Logger, dir string, catalog *Catalog, reg *registry.Registry, opts ...Option) *Loader {
	l := &Loader{
		log:      log.Component("plugins"),
		dir:      dir,
		catalog:  catalog,
		registry: reg,
		records:  make(map[string]*record),
		subs:     make(map[int]func(LifecycleEvent)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the plugins directory.
func (l *Loader) Dir() string { return l.dir }

// LoadAll loads every enabled plugin folder and returns how many loaded.
// Failures are logged and skipped.
func (l *Loader) LoadAll(ctx context.Context) int {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		l.log.Error("Failed to create plugins directory", zap.String("dir", l.dir), zap.Error(err))
		return 0
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.log.Error("Failed to read plugins directory", zap.String("dir", l.dir), zap.Error(err))
		return 0
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() || skipFolder(entry.Name()) {
			continue
		}
		folder := entry.Name()
		if l.config != nil && l.config.PluginDisabled(folder) {
			l.log.Info("Plugin disabled by configuration", zap.String("folder", folder))
			continue
		}
		if _, err := l.loadLocked(ctx, folder, true); err != nil {
			if errors.Is(err, errDisabled) {
				l.log.Info("Plugin disabled by manifest", zap.String("folder", folder))
				continue
			}
			l.reportFailure(folder, err)
			continue
		}
		loaded++
	}

	l.log.Info("Plugins loaded", zap.Int("loaded", loaded), zap.String("dir", l.dir))
	return loaded
}

// LoadOne loads the plugin in folder, replacing any plugin with the same name.
func (l *Loader) LoadOne(ctx context.Context, folder string) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if _, err := l.loadLocked(ctx, folder, false); err != nil {
		l.reportFailure(folder, err)
		return false
	}
	return true
}

// Load is LoadOne returning the failure.
func (l *Loader) Load(ctx context.Context, folder string) (string, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	name, err := l.loadLocked(ctx, folder, false)
	if err != nil {
		l.reportFailure(folder, err)
	}
	return name, err
}

// Unload removes the plugin and everything it registered.
func (l *Loader) Unload(ctx context.Context, name string) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	return l.unloadLocked(ctx, name)
}

// Reload unloads the plugin and loads its folder again from disk.
func (l *Loader) Reload(ctx context.Context, name string) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.RLock()
	rec, ok := l.records[name]
	l.mu.RUnlock()
	if !ok {
		l.log.Warn("Cannot reload plugin that is not loaded", zap.String("plugin", name))
		return false
	}

	folder := rec.folder
	l.unloadLocked(ctx, name)
	if _, err := l.loadLocked(ctx, folder, false); err != nil {
		l.reportFailure(folder, err)
		return false
	}
	l.log.Info("Reloaded plugin", zap.String("plugin", name))
	return true
}

// UnloadAll unloads every plugin in reverse name order.
func (l *Loader) UnloadAll(ctx context.Context) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	names := l.names()
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		l.unloadLocked(ctx, name)
	}
}

// Lookup returns the handle of an active plugin.
func (l *Loader) Lookup(name string) (Plugin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[name]
	if !ok || rec.state != StateActive {
		return nil, false
	}
	return rec.handle, true
}

// ByFolder returns the name of the plugin loaded from folder.
func (l *Loader) ByFolder(folder string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for name, rec := range l.records {
		if rec.folder == folder {
			return name, true
		}
	}
	return "", false
}

// Get returns a snapshot of one plugin.
func (l *Loader) Get(name string) (Info, bool) {
	l.mu.RLock()
	rec, ok := l.records[name]
	l.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	return l.info(rec), true
}

// List returns snapshots of all plugins sorted by name.
func (l *Loader) List() []Info {
	l.mu.RLock()
	recs := make([]*record, 0, len(l.records))
	for _, rec := range l.records {
		recs = append(recs, rec)
	}
	l.mu.RUnlock()

	infos := make([]Info, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, l.info(rec))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Discover lists the plugin folders on disk, loaded or not.
func (l *Loader) Discover() []Discovery {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}

	var found []Discovery
	for _, entry := range entries {
		if !entry.IsDir() || skipFolder(entry.Name()) {
			continue
		}
		d := Discovery{Folder: entry.Name()}
		m, err := ReadManifest(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			d.Error = err.Error()
		} else {
			d.Name = m.Name
			d.Version = m.Version
			d.Enabled = m.IsEnabled() && (l.config == nil || !l.config.PluginDisabled(entry.Name()))
		}
		_, d.Loaded = l.ByFolder(entry.Name())
		found = append(found, d)
	}
	return found
}

// Subscribe registers fn for lifecycle events. fn runs on the goroutine of the
// lifecycle operation and must not block.
func (l *Loader) Subscribe(fn func(LifecycleEvent)) (cancel func()) {
	l.subsMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.subsMu.Unlock()

	return func() {
		l.subsMu.Lock()
		delete(l.subs, id)
		l.subsMu.Unlock()
	}
}

var errDisabled = errors.New("plugin disabled")

// loadLocked requires l.opMu.
func (l *Loader) loadLocked(ctx context.Context, folder string, respectEnabled bool) (string, error) {
	if skipFolder(folder) || strings.ContainsAny(folder, `/\`) {
		return "", &LoadError{Folder: folder, Path: l.dir, Err: fmt.Errorf("invalid folder name")}
	}
	path := filepath.Join(l.dir, folder)
	manifestPath := filepath.Join(path, ManifestFile)

	m, err := ReadManifest(path)
	if err != nil {
		return "", &LoadError{Folder: folder, Path: manifestPath, Err: err}
	}
	if respectEnabled && !m.IsEnabled() {
		return "", errDisabled
	}

	factoryName := m.FactoryName(folder)
	factory, ok := l.catalog.Lookup(factoryName)
	if !ok {
		return "", &LoadError{Folder: folder, Path: manifestPath, Err: fmt.Errorf("no plugin factory named %q", factoryName)}
	}

	handle, err := build(factory, m)
	if err != nil {
		return "", &LoadError{Folder: folder, Path: manifestPath, Err: err}
	}
	if handle == nil {
		return "", &InvalidError{Folder: folder, Reason: "factory returned no plugin"}
	}

	name := handle.Name()
	switch {
	case name == "":
		return "", &InvalidError{Folder: folder, Reason: "plugin has no name"}
	case handle.Version() == "":
		return "", &InvalidError{Folder: folder, Reason: "plugin has no version"}
	case !namePattern.MatchString(name):
		return "", &InvalidError{Folder: folder, Reason: fmt.Sprintf("plugin name %q is not a valid identifier", name)}
	case name == ReservedOwner:
		return "", &InvalidError{Folder: folder, Reason: fmt.Sprintf("plugin name %q is reserved", name)}
	}
	if m.Name != "" && m.Name != name {
		l.log.Warn("Manifest name differs from plugin name",
			zap.String("folder", folder),
			zap.String("manifest", m.Name),
			zap.String("plugin", name))
	}

	if _, exists := l.records[name]; exists {
		l.log.Warn("Replacing loaded plugin with the same name", zap.String("plugin", name), zap.String("folder", folder))
		l.unloadLocked(ctx, name)
	}
	if previous, ok := l.ByFolder(folder); ok {
		l.unloadLocked(ctx, previous)
	}

	rec := &record{
		name:     name,
		folder:   folder,
		manifest: m,
		handle:   handle,
		state:    StateLoading,
	}
	rec.pctx = l.newContext(name, folder, m)

	l.mu.Lock()
	l.records[name] = rec
	l.mu.Unlock()

	if err := initialize(ctx, handle, rec.pctx); err != nil {
		l.rollback(name)
		return "", &InvalidError{Folder: folder, Reason: "initialize failed", Err: err}
	}

	l.mu.Lock()
	rec.state = StateActive
	rec.loadedAt = time.Now()
	l.mu.Unlock()

	commands, events, jobs := rec.pctx.registered()
	l.log.Info("Loaded plugin",
		zap.String("plugin", name),
		zap.String("version", handle.Version()),
		zap.String("folder", folder),
		zap.Int("commands", commands),
		zap.Int("events", events),
		zap.Int("jobs", jobs))

	l.publish(LifecycleEvent{Type: EventLoaded, Plugin: name, Folder: folder, Time: time.Now()})
	return name, nil
}

// rollback removes everything a failed Initialize registered.
func (l *Loader) rollback(name string) {
	removal := l.registry.UnregisterOwner(name)
	if l.scheduler != nil {
		l.scheduler.RemoveOwner(name)
	}

	l.mu.Lock()
	delete(l.records, name)
	l.mu.Unlock()

	l.log.Debug("Rolled back plugin registrations",
		zap.String("plugin", name),
		zap.Int("commands", removal.CommandsRemoved),
		zap.Int("events", removal.EventsRemoved))
}

// unloadLocked requires l.opMu.
func (l *Loader) unloadLocked(ctx context.Context, name string) bool {
	l.mu.Lock()
	rec, ok := l.records[name]
	if ok {
		rec.state = StateUnloading
	}
	l.mu.Unlock()
	if !ok {
		l.log.Warn("Plugin not loaded", zap.String("plugin", name))
		return false
	}

	if s, ok := rec.handle.(Shutdowner); ok {
		if err := shutdown(ctx, s); err != nil {
			l.log.Warn("Plugin shutdown failed", zap.String("plugin", name), zap.Error(err))
		}
	}

	removal := l.registry.UnregisterOwner(name)
	jobs := 0
	if l.scheduler != nil {
		jobs = l.scheduler.RemoveOwner(name)
	}

	l.mu.Lock()
	delete(l.records, name)
	l.mu.Unlock()

	l.log.Info("Unloaded plugin",
		zap.String("plugin", name),
		zap.Int("commands", removal.CommandsRemoved),
		zap.Int("events", removal.EventsRemoved),
		zap.Int("jobs", jobs))

	l.publish(LifecycleEvent{Type: EventUnloaded, Plugin: name, Folder: rec.folder, Time: time.Now()})
	return true
}

func (l *Loader) reportFailure(folder string, err error) {
	l.log.Error("Failed to load plugin", zap.String("folder", folder), zap.Error(err))
	l.publish(LifecycleEvent{Type: EventFailed, Folder: folder, Error: err.Error(), Time: time.Now()})
}

func (l *Loader) publish(ev LifecycleEvent) {
	l.subsMu.RLock()
	subs := make([]func(LifecycleEvent), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.subsMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (l *Loader) names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.records))
	for name := range l.records {
		names = append(names, name)
	}
	return names
}

func (l *Loader) info(rec *record) Info {
	l.mu.RLock()
	state, loadedAt := rec.state, rec.loadedAt
	l.mu.RUnlock()

	info := Info{
		Name:        rec.name,
		Version:     rec.handle.Version(),
		Description: rec.manifest.Description,
		Author:      rec.manifest.Author,
		Folder:      rec.folder,
		State:       state,
		LoadedAt:    loadedAt,
	}
	if d, ok := rec.handle.(Describer); ok {
		if v := d.Description(); v != "" {
			info.Description = v
		}
		if v := d.Author(); v != "" {
			info.Author = v
		}
	}
	if info.Description == "" {
		info.Description = "No description provided"
	}
	if info.Author == "" {
		info.Author = "Unknown"
	}
	for _, cmd := range l.registry.CommandsByOwner(rec.name) {
		info.Commands = append(info.Commands, cmd.Name)
	}
	for _, kind := range SupportedKinds(rec.handle) {
		info.Components = append(info.Components, kind.String())
	}
	return info
}

func skipFolder(name string) bool {
	return name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func build(factory Factory, m *Manifest) (p Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panic: %v", rec)
		}
	}()
	return factory(m)
}

func initialize(ctx context.Context, p Plugin, pc *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Initialize(ctx, pc)
}

func shutdown(ctx context.Context, s Shutdowner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.Shutdown(ctx)
}
