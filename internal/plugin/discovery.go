package plugin

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitewright/internal/config"
	"git.home.luguber.info/inful/sitewright/internal/logfields"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// DiscoveryConfig locates the places plugins can live.
type DiscoveryConfig struct {
	// BuiltinManifests holds embedded <name>/plugin.yaml files.
	BuiltinManifests fs.FS

	// PluginsDir is scanned for package-convention and scoped plugins.
	PluginsDir string

	// ProjectRoot anchors relative path references.
	ProjectRoot string

	// Refs are the site configuration's plugin entries; path-looking refs
	// are discovered from disk.
	Refs []config.PluginRef

	Logger *slog.Logger
}

// BuildRegistry scans every plugin source and returns the registry the
// resolver works over. Discovery order is deterministic because it drives
// capability selection: builtins sorted by name, then package-convention
// directories sorted, then scoped packages sorted, then path references in
// configuration order. Unusable manifests are skipped with a warning.
func BuildRegistry(cfg DiscoveryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := NewRegistry()
	discoverBuiltins(reg, cfg.BuiltinManifests, logger)
	discoverPackages(reg, cfg.PluginsDir, logger)
	discoverScoped(reg, cfg.PluginsDir, logger)
	discoverPathRefs(reg, cfg.ProjectRoot, cfg.Refs, logger)

	logger.Debug("plugin discovery complete", logfields.Count(reg.Len()))
	return reg
}

func discoverBuiltins(reg *Registry, manifests fs.FS, logger *slog.Logger) {
	if manifests == nil {
		return
	}
	entries, err := fs.ReadDir(manifests, ".")
	if err != nil {
		logger.Warn("could not scan builtin manifests", logfields.Error(err))
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := fs.ReadFile(manifests, path.Join(e.Name(), manifestFileName))
		if err != nil {
			continue
		}
		addManifest(reg, raw, Descriptor{Source: SourceBuiltin}, e.Name(), logger)
	}
}

func discoverPackages(reg *Registry, pluginsDir string, logger *slog.Logger) {
	for _, e := range readPluginsDir(pluginsDir, logger) {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), PackagePrefix) {
			continue
		}
		dir := filepath.Join(pluginsDir, e.Name())
		raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
		if err != nil {
			// A directory without a manifest is not a plugin.
			continue
		}
		addManifest(reg, raw, Descriptor{Source: SourcePackage, Dir: dir}, dir, logger)
	}
}

func discoverScoped(reg *Registry, pluginsDir string, logger *slog.Logger) {
	for _, scope := range readPluginsDir(pluginsDir, logger) {
		if !scope.IsDir() || !strings.HasPrefix(scope.Name(), "@") {
			continue
		}
		scopeDir := filepath.Join(pluginsDir, scope.Name())
		inner, err := os.ReadDir(scopeDir)
		if err != nil {
			logger.Warn("could not scan scope directory", logfields.Path(scopeDir), logfields.Error(err))
			continue
		}
		for _, e := range inner {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(scopeDir, e.Name())
			raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
			if err != nil {
				continue
			}
			addManifest(reg, raw, Descriptor{Source: SourceScoped, Dir: dir}, dir, logger)
		}
	}
}

func discoverPathRefs(reg *Registry, projectRoot string, refs []config.PluginRef, logger *slog.Logger) {
	for _, ref := range refs {
		// Scoped names contain a slash but are the scoped source's job.
		if looksScoped(ref.Name) || !looksLikePath(ref.Name) {
			continue
		}
		dir := ref.Name
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(projectRoot, dir)
		}
		raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
		if err != nil {
			logger.Warn("path plugin has no readable manifest", logfields.Path(ref.Name), logfields.Error(err))
			continue
		}
		addManifest(reg, raw, Descriptor{Source: SourcePath, Ref: ref.Name, Dir: dir}, ref.Name, logger)
	}
}

func readPluginsDir(pluginsDir string, logger *slog.Logger) []os.DirEntry {
	if pluginsDir == "" {
		return nil
	}
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not scan plugins directory", logfields.Path(pluginsDir), logfields.Error(err))
		}
		return nil
	}
	return entries
}

func addManifest(reg *Registry, raw []byte, d Descriptor, origin string, logger *slog.Logger) {
	var man plugin.Manifest
	if err := yaml.Unmarshal(raw, &man); err != nil {
		logger.Warn("skipping unparsable plugin manifest", logfields.Path(origin), logfields.Error(err))
		return
	}
	d.Manifest = man
	if err := reg.Add(d); err != nil {
		logger.Warn("skipping plugin manifest", logfields.Path(origin), logfields.Error(err))
	}
}
