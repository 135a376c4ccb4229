package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"

	"git.home.luguber.info/inful/sitewright/internal/logfields"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// Instance is a loaded, validated plugin ready for registration.
type Instance struct {
	Manifest plugin.Manifest
	Source   Source

	Hooks      map[string]plugin.HookFunc
	Shortcodes map[string]plugin.ShortcodeFunc
	Components map[string]plugin.ShortcodeFunc

	// DefaultConfig comes from the manifest, UserConfig from site.yaml,
	// ResolvedConfig is defaults overlaid with user keys.
	DefaultConfig  map[string]any
	UserConfig     map[string]any
	ResolvedConfig map[string]any

	// Enabled is true unless the user config set enabled: false.
	Enabled bool

	// Impl is the backing implementation, consulted for optional
	// interfaces (Cleaner, AssetProvider).
	Impl plugin.Plugin
}

// Name returns the instance's plugin name.
func (in *Instance) Name() string {
	return in.Manifest.Name
}

// LoaderConfig wires a Loader to its plugin sources.
type LoaderConfig struct {
	// BuiltinManifests holds embedded <name>/plugin.yaml files.
	BuiltinManifests fs.FS

	// BuiltinFactory returns the compiled-in implementation for a builtin
	// name.
	BuiltinFactory func(name string) (plugin.Plugin, bool)

	// PluginsDir is where external plugin packages live.
	PluginsDir string

	// ProjectRoot anchors relative local-path plugin references.
	ProjectRoot string

	// OpenModule loads a plugin module from a .so path. Nil selects the
	// real loader; tests inject fakes.
	OpenModule ModuleOpener

	Logger *slog.Logger
}

// Loader materializes plugin instances by trying each source in a fixed
// priority order: builtin, package by convention, scoped package, local
// path. Loaded instances are cached by normalized name until ClearCache.
type Loader struct {
	sources []pluginSource
	cache   map[string]*Instance
	logger  *slog.Logger
}

// NewLoader creates a loader with the standard source chain.
func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := cfg.OpenModule
	if open == nil {
		open = openPluginModule
	}

	return &Loader{
		logger: logger,
		cache:  make(map[string]*Instance),
		sources: []pluginSource{
			&builtinSource{manifests: cfg.BuiltinManifests, factory: cfg.BuiltinFactory},
			&packageSource{pluginsDir: cfg.PluginsDir, open: open},
			&scopedSource{pluginsDir: cfg.PluginsDir, open: open},
			&pathSource{projectRoot: cfg.ProjectRoot, open: open},
		},
	}
}

// Load locates, validates, and configures the named plugin. The error for
// an unloadable name enumerates every source tried. Repeated loads of the
// same name return the identical cached instance.
func (l *Loader) Load(name string, userConfig map[string]any) (*Instance, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, &ValidationError{Plugin: name, Reason: "empty plugin name"}
	}
	if inst, ok := l.cache[key]; ok {
		return inst, nil
	}

	var tried []string
	for _, src := range l.sources {
		impl, man, err := src.Load(name)
		if err != nil {
			if errors.Is(err, errNotApplicable) {
				tried = append(tried, fmt.Sprintf("%s: %s", src.Kind(), notApplicableReason(err)))
				continue
			}
			return nil, fmt.Errorf("loading plugin %q from %s source: %w", name, src.Kind(), err)
		}

		inst, err := l.buildInstance(impl, man, src.Kind(), userConfig)
		if err != nil {
			return nil, err
		}

		l.cache[key] = inst
		l.logger.Debug("plugin loaded",
			logfields.Plugin(inst.Name()),
			logfields.Version(inst.Manifest.Version),
			logfields.Source(string(inst.Source)))
		return inst, nil
	}

	return nil, &NotFoundError{Name: name, Tried: tried}
}

// ClearCache drops every cached instance; subsequent loads re-materialize.
func (l *Loader) ClearCache() {
	l.cache = make(map[string]*Instance)
}

func (l *Loader) buildInstance(impl plugin.Plugin, man plugin.Manifest, src Source, userConfig map[string]any) (*Instance, error) {
	if err := validateShape(impl, man); err != nil {
		return nil, err
	}

	inst := &Instance{
		Manifest:      man,
		Source:        src,
		Hooks:         impl.Hooks(),
		Shortcodes:    impl.Shortcodes(),
		Components:    impl.Components(),
		DefaultConfig: man.Config,
		UserConfig:    userConfig,
		Impl:          impl,
	}
	inst.ResolvedConfig, inst.Enabled = mergeConfig(man.Config, userConfig)
	return inst, nil
}

// validateShape checks the loaded plugin's structural contract.
func validateShape(impl plugin.Plugin, man plugin.Manifest) error {
	name := strings.TrimSpace(man.Name)
	if name == "" {
		return &ValidationError{Plugin: man.Name, Reason: "manifest has no name"}
	}

	if implName := strings.TrimSpace(impl.Manifest().Name); implName != "" && implName != name {
		return &ValidationError{
			Plugin: name,
			Reason: fmt.Sprintf("module reports name %q, manifest says %q", implName, name),
		}
	}

	if _, err := semver.StrictNewVersion(man.Version); err != nil {
		return &ValidationError{
			Plugin: name,
			Reason: fmt.Sprintf("version %q is not strict semver: %v", man.Version, err),
		}
	}

	for hook, fn := range impl.Hooks() {
		if fn == nil {
			return &ValidationError{Plugin: name, Reason: fmt.Sprintf("hook %q handler is nil", hook)}
		}
	}
	for sc, fn := range impl.Shortcodes() {
		if fn == nil {
			return &ValidationError{Plugin: name, Reason: fmt.Sprintf("shortcode %q handler is nil", sc)}
		}
	}
	for comp, fn := range impl.Components() {
		if fn == nil {
			return &ValidationError{Plugin: name, Reason: fmt.Sprintf("component %q handler is nil", comp)}
		}
	}
	return nil
}

// mergeConfig overlays user configuration onto manifest defaults, key by
// key. The reserved enabled key (user side only) turns the instance off.
func mergeConfig(defaults, user map[string]any) (map[string]any, bool) {
	resolved := make(map[string]any, len(defaults)+len(user))
	for k, v := range defaults {
		resolved[k] = v
	}
	for k, v := range user {
		resolved[k] = v
	}

	enabled := true
	if v, ok := user["enabled"]; ok {
		if b, isBool := v.(bool); isBool && !b {
			enabled = false
		}
	}
	return resolved, enabled
}

// normalizeName produces the cache key for a plugin name.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
