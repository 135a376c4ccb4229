package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitewright/internal/config"
	"git.home.luguber.info/inful/sitewright/internal/journal"
	"git.home.luguber.info/inful/sitewright/internal/logfields"
	"git.home.luguber.info/inful/sitewright/internal/metrics"
	"git.home.luguber.info/inful/sitewright/internal/state"
	"git.home.luguber.info/inful/sitewright/internal/util/sets"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

var knownHookSet = sets.New(plugin.KnownHooks()...)

// hookHandler binds a registered hook function to its owning plugin and
// that plugin's scoped context.
type hookHandler struct {
	owner string
	fn    plugin.HookFunc
	pc    *plugin.Context
}

// shortcodeHandler binds a shortcode or component renderer to its owner.
type shortcodeHandler struct {
	owner string
	fn    plugin.ShortcodeFunc
	pc    *plugin.Context
}

// ManagerConfig assembles a Manager's collaborators. Zero-value fields get
// safe defaults: a discarding journal, no-op metrics, an in-memory state
// store, and slog.Default().
type ManagerConfig struct {
	Registry *Registry
	Loader   *Loader
	State    state.Store
	Journal  journal.Journal
	Metrics  metrics.Recorder
	Logger   *slog.Logger

	// Context is the shared build context cloned per plugin at
	// registration. Nil gets a minimal context using Logger.
	Context *plugin.Context
}

// Manager owns the plugin lifecycle: it resolves the configured set into
// dependency order, loads and registers each plugin, dispatches hooks and
// shortcodes during builds, and tears everything down on shutdown.
type Manager struct {
	registry *Registry
	resolver *Resolver
	loader   *Loader
	store    state.Store
	journal  journal.Journal
	metrics  metrics.Recorder
	logger   *slog.Logger

	sharedCtx *plugin.Context
	contexts  map[string]*plugin.Context

	initialized bool
	instances   []*Instance
	byName      map[string]*Instance
	hooks       map[string][]hookHandler
	shortcodes  map[string]shortcodeHandler
	components  map[string]shortcodeHandler
}

// NewManager wires a Manager from its collaborators.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.State
	if store == nil {
		store = state.NewMemoryStore()
	}
	jnl := cfg.Journal
	if jnl == nil {
		jnl = journal.Nop{}
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	shared := cfg.Context
	if shared == nil {
		shared = &plugin.Context{Logger: logger}
	}
	if shared.Logger == nil {
		shared.Logger = logger
	}
	if shared.Data == nil {
		shared.Data = make(map[string]any)
	}
	if shared.Site == nil {
		shared.Site = make(map[string]any)
	}

	return &Manager{
		registry:   cfg.Registry,
		resolver:   NewResolver(cfg.Registry, logger),
		loader:     cfg.Loader,
		store:      store,
		journal:    jnl,
		metrics:    rec,
		logger:     logger,
		sharedCtx:  shared,
		contexts:   make(map[string]*plugin.Context),
		byName:     make(map[string]*Instance),
		hooks:      make(map[string][]hookHandler),
		shortcodes: make(map[string]shortcodeHandler),
		components: make(map[string]shortcodeHandler),
	}
}

// Initialize loads the configured plugin set. It runs cleanup callbacks for
// plugins that were loaded on a previous run but are gone from refs, resolves
// the requested names into dependency order, loads and registers each plugin,
// and persists the requested set for the next run's cleanup diff.
//
// A second call on an initialized manager warns and returns nil.
func (m *Manager) Initialize(ctx context.Context, refs []config.PluginRef) error {
	if m.initialized {
		m.logger.Warn("plugin manager already initialized, ignoring")
		return nil
	}

	requested := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Enabled {
			requested = append(requested, ref.Name)
		}
	}

	m.cleanupDeparted(ctx, requested)

	order, err := m.resolver.Resolve(requested)
	if err != nil {
		return fmt.Errorf("resolving plugins: %w", err)
	}

	for _, name := range order {
		inst, err := m.loader.Load(name, userConfigFor(refs, name))
		if err != nil {
			return err
		}
		if !inst.Enabled {
			m.logger.Warn("plugin disabled, skipping registration", logfields.Plugin(inst.Name()))
			continue
		}
		m.register(ctx, inst)
	}

	m.metrics.SetPluginsLoaded(len(m.instances))

	err = m.store.Save(state.BuildState{LoadedPlugins: requested, UpdatedAt: time.Now()})
	if err != nil {
		m.logger.Warn("could not persist plugin state", logfields.Error(err))
	}

	m.initialized = true
	m.logger.Info("plugins initialized", logfields.Count(len(m.instances)))
	return nil
}

// cleanupDeparted diffs the persisted loaded set against the requested set
// and runs Cleanup for plugins that are gone. Failures are logged, never
// fatal: a missing plugin must not block initialization of the current set.
func (m *Manager) cleanupDeparted(ctx context.Context, requested []string) {
	prev, err := m.store.Load()
	if err != nil {
		m.logger.Warn("could not read plugin state, skipping cleanup", logfields.Error(err))
		return
	}
	if len(prev.LoadedPlugins) == 0 {
		return
	}

	current := sets.New(requested...)
	departed := false
	for _, name := range prev.LoadedPlugins {
		if current.Has(name) {
			continue
		}
		departed = true
		m.cleanupPlugin(ctx, name)
	}
	if departed {
		// Departed instances were loaded solely for their cleanup callback.
		m.loader.ClearCache()
	}
}

func (m *Manager) cleanupPlugin(ctx context.Context, name string) {
	inst, err := m.loader.Load(name, nil)
	if err != nil {
		m.logger.Warn("could not load removed plugin for cleanup", logfields.Plugin(name), logfields.Error(err))
		return
	}
	cleaner, ok := inst.Impl.(plugin.Cleaner)
	if !ok {
		return
	}
	pc := m.sharedCtx.ForPlugin(inst.Name(), inst.ResolvedConfig)
	if err := cleaner.Cleanup(ctx, pc); err != nil {
		m.logger.Warn("cleanup failed for removed plugin", logfields.Plugin(inst.Name()), logfields.Error(err))
		return
	}
	m.logger.Info("cleaned up removed plugin", logfields.Plugin(inst.Name()))
}

// userConfigFor finds the site.yaml config block for name. A ref disabled by
// the user keeps that veto even when the plugin is pulled in as a dependency.
func userConfigFor(refs []config.PluginRef, name string) map[string]any {
	for _, ref := range refs {
		if !strings.EqualFold(ref.Name, name) {
			continue
		}
		if ref.Enabled {
			return ref.Config
		}
		cfg := maps.Clone(ref.Config)
		if cfg == nil {
			cfg = make(map[string]any, 1)
		}
		cfg["enabled"] = false
		return cfg
	}
	return nil
}

func (m *Manager) register(ctx context.Context, inst *Instance) {
	name := inst.Name()
	pc := m.sharedCtx.ForPlugin(name, inst.ResolvedConfig)
	m.contexts[name] = pc
	m.instances = append(m.instances, inst)
	m.byName[name] = inst

	for hook, fn := range inst.Hooks {
		m.hooks[hook] = append(m.hooks[hook], hookHandler{owner: name, fn: fn, pc: pc})
	}
	for sc, fn := range inst.Shortcodes {
		if prev, taken := m.shortcodes[sc]; taken {
			m.logger.Warn("shortcode already registered, overriding",
				logfields.Shortcode(sc), slog.String("previous", prev.owner), logfields.Plugin(name))
		}
		m.shortcodes[sc] = shortcodeHandler{owner: name, fn: fn, pc: pc}
	}
	for comp, fn := range inst.Components {
		if prev, taken := m.components[comp]; taken {
			m.logger.Warn("component already registered, overriding",
				slog.String("component", comp), slog.String("previous", prev.owner), logfields.Plugin(name))
		}
		m.components[comp] = shortcodeHandler{owner: name, fn: fn, pc: pc}
	}

	if err := m.journal.Record(ctx, journal.Event{
		BuildID: m.sharedCtx.BuildID,
		Type:    journal.EventPluginLoaded,
		Plugin:  name,
		Detail:  fmt.Sprintf("%s from %s", inst.Manifest.String(), inst.Source),
	}); err != nil {
		m.logger.Debug("journal write failed", logfields.Error(err))
	}

	m.logger.Debug("registered plugin",
		logfields.Plugin(name), logfields.Version(inst.Manifest.Version), logfields.Source(string(inst.Source)))
}

// ExecuteHook runs every handler registered for hook in plugin load order
// and returns the final value.
//
// The value threads through the chain: a handler returning non-nil replaces
// it for the next handler, a nil return leaves it untouched. Handler errors
// and panics are logged and counted but never abort the chain or the build.
//
// Two special cases preserve handler ergonomics. The config:loaded hook
// passes each handler the raw site configuration plus its own resolved
// config and ignores returned values. And when value is raw content
// (string or []byte) with no extra args, each handler receives its own
// plugin context as the sole argument.
func (m *Manager) ExecuteHook(ctx context.Context, hook string, value any, args ...any) any {
	if !knownHookSet.Has(hook) {
		m.logger.Warn("executing unrecognized hook", logfields.Hook(hook))
	}

	handlers := m.hooks[hook]
	if len(handlers) == 0 {
		return value
	}

	start := time.Now()
	defer func() {
		m.metrics.ObserveHookDuration(hook, time.Since(start))
	}()

	if hook == plugin.HookConfigLoaded {
		for _, h := range handlers {
			if _, err := m.invokeHook(ctx, h, m.sharedCtx.Site, []any{h.pc.Config}); err != nil {
				m.isolateFailure(ctx, hook, h.owner, err)
			}
		}
		return value
	}

	appendOwnContext := len(args) == 0 && isRawContent(value)

	running := value
	for _, h := range handlers {
		callArgs := args
		if appendOwnContext {
			callArgs = []any{h.pc}
		}
		out, err := m.invokeHook(ctx, h, running, callArgs)
		if err != nil {
			m.isolateFailure(ctx, hook, h.owner, err)
			continue
		}
		if out != nil {
			running = out
		}
	}
	return running
}

func isRawContent(v any) bool {
	switch v.(type) {
	case string, []byte:
		return true
	}
	return false
}

func (m *Manager) invokeHook(ctx context.Context, h hookHandler, value any, args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx, h.pc, value, args...)
}

func (m *Manager) isolateFailure(ctx context.Context, hook, owner string, err error) {
	hookErr := &RuntimeHookError{Hook: hook, Plugin: owner, Err: err}
	m.logger.Error("hook handler failed",
		logfields.Hook(hook), logfields.Plugin(owner), logfields.Error(hookErr.Err))
	m.metrics.IncHandlerFailure(hook, owner)
	if jerr := m.journal.Record(ctx, journal.Event{
		BuildID: m.sharedCtx.BuildID,
		Type:    journal.EventHandlerFailed,
		Plugin:  owner,
		Hook:    hook,
		Detail:  err.Error(),
	}); jerr != nil {
		m.logger.Debug("journal write failed", logfields.Error(jerr))
	}
}

// ExecuteShortcode renders a registered shortcode. The second return is
// false when no plugin registered the name or the renderer failed, letting
// the caller leave the original text in place.
func (m *Manager) ExecuteShortcode(ctx context.Context, name string, attrs map[string]string, content string) (string, bool) {
	h, ok := m.shortcodes[name]
	if !ok {
		return "", false
	}
	out, err := m.invokeShortcode(ctx, h, attrs, content)
	if err != nil {
		m.logger.Error("shortcode failed",
			logfields.Shortcode(name), logfields.Plugin(h.owner), logfields.Error(err))
		if jerr := m.journal.Record(ctx, journal.Event{
			BuildID: m.sharedCtx.BuildID,
			Type:    journal.EventShortcodeFailed,
			Plugin:  h.owner,
			Detail:  fmt.Sprintf("%s: %v", name, err),
		}); jerr != nil {
			m.logger.Debug("journal write failed", logfields.Error(jerr))
		}
		return "", false
	}
	return out, true
}

// ExecuteComponent renders a registered theme component. Same contract as
// ExecuteShortcode.
func (m *Manager) ExecuteComponent(ctx context.Context, name string, attrs map[string]string, content string) (string, bool) {
	h, ok := m.components[name]
	if !ok {
		return "", false
	}
	out, err := m.invokeShortcode(ctx, h, attrs, content)
	if err != nil {
		m.logger.Error("component failed",
			slog.String("component", name), logfields.Plugin(h.owner), logfields.Error(err))
		return "", false
	}
	return out, true
}

func (m *Manager) invokeShortcode(ctx context.Context, h shortcodeHandler, attrs map[string]string, content string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx, h.pc, attrs, content)
}

// HasShortcode reports whether any plugin registered the named shortcode.
func (m *Manager) HasShortcode(name string) bool {
	_, ok := m.shortcodes[name]
	return ok
}

// Instances returns the registered plugins in load order.
func (m *Manager) Instances() []*Instance {
	out := make([]*Instance, len(m.instances))
	copy(out, m.instances)
	return out
}

// Instance returns the registered plugin by name.
func (m *Manager) Instance(name string) (*Instance, bool) {
	inst, ok := m.byName[name]
	return inst, ok
}

// Context returns the shared build context.
func (m *Manager) Context() *plugin.Context {
	return m.sharedCtx
}

// SetBuildID stamps the current build's ID onto the shared context and
// every per-plugin context. Watch mode calls this before each rebuild.
func (m *Manager) SetBuildID(id string) {
	m.sharedCtx.BuildID = id
	for _, pc := range m.contexts {
		pc.BuildID = id
	}
}

// Shutdown fires the shutdown hook, runs Cleanup on every plugin that
// implements it, and clears all registries and the loader cache. It is safe
// to call on a manager that never initialized, and the manager may be
// initialized again afterwards.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.initialized {
		m.ExecuteHook(ctx, plugin.HookShutdown, nil)
		for _, inst := range m.instances {
			cleaner, ok := inst.Impl.(plugin.Cleaner)
			if !ok {
				continue
			}
			if err := cleaner.Cleanup(ctx, m.contexts[inst.Name()]); err != nil {
				m.logger.Warn("cleanup failed during shutdown", logfields.Plugin(inst.Name()), logfields.Error(err))
			}
		}
	}

	m.instances = nil
	m.byName = make(map[string]*Instance)
	m.contexts = make(map[string]*plugin.Context)
	m.hooks = make(map[string][]hookHandler)
	m.shortcodes = make(map[string]shortcodeHandler)
	m.components = make(map[string]shortcodeHandler)
	m.loader.ClearCache()
	m.initialized = false
}
