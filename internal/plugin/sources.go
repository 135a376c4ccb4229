package plugin

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	goplugin "plugin"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// PackagePrefix is the directory name prefix for external plugin packages
// discovered by convention under the plugins directory.
const PackagePrefix = "sitewright-plugin-"

// manifestFileName is the manifest every on-disk plugin directory carries.
const manifestFileName = "plugin.yaml"

// moduleFileName is the compiled plugin module next to the manifest.
const moduleFileName = "plugin.so"

// ModuleOpener loads a plugin implementation from a compiled module path.
// Tests substitute in-memory fakes for it.
type ModuleOpener func(soPath string) (plugin.Plugin, error)

// pluginSource is one loading strategy. Load returns the implementation
// and its authoritative manifest, or wraps errNotApplicable when the
// strategy does not handle the name.
type pluginSource interface {
	Kind() Source
	Load(name string) (plugin.Plugin, plugin.Manifest, error)
}

func notApplicableReason(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+errNotApplicable.Error())
}

// pathTraversalPattern matches a bare ".." path segment.
var pathTraversalPattern = regexp.MustCompile(`(?:^|/|\\)\.\.(?:/|\\|$)`)

// builtinSource serves plugins compiled into the binary. A builtin exists
// when both its embedded manifest and its registered factory are present.
type builtinSource struct {
	manifests fs.FS
	factory   func(name string) (plugin.Plugin, bool)
}

func (s *builtinSource) Kind() Source { return SourceBuiltin }

func (s *builtinSource) Load(name string) (plugin.Plugin, plugin.Manifest, error) {
	var zero plugin.Manifest

	if s.manifests == nil || s.factory == nil {
		return nil, zero, fmt.Errorf("no builtin plugins compiled in: %w", errNotApplicable)
	}

	clean := sanitizeBuiltinName(name)
	if clean == "" {
		return nil, zero, fmt.Errorf("name %q sanitizes to nothing: %w", name, errNotApplicable)
	}

	manifestPath := path.Join(clean, manifestFileName)
	// Sanitization strips separators and dot-dot, but the containment
	// check stays: a regression there must not open the embedded root.
	if !fs.ValidPath(manifestPath) || pathTraversalPattern.MatchString(manifestPath) {
		return nil, zero, &ValidationError{Plugin: name, Reason: "name escapes the builtin plugin root"}
	}

	data, err := fs.ReadFile(s.manifests, manifestPath)
	if err != nil {
		return nil, zero, fmt.Errorf("no builtin manifest for %q: %w", clean, errNotApplicable)
	}

	impl, ok := s.factory(clean)
	if !ok {
		return nil, zero, fmt.Errorf("builtin manifest %q has no compiled entry: %w", clean, errNotApplicable)
	}

	var man plugin.Manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return nil, zero, fmt.Errorf("parsing builtin manifest %q: %w", clean, err)
	}
	return impl, man, nil
}

// sanitizeBuiltinName strips whitespace, path separators, and dot-dot
// sequences from a requested builtin name.
func sanitizeBuiltinName(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.ReplaceAll(clean, "..", "")
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return -1
		}
		return r
	}, clean)
}

// packageSource finds external packages by naming convention:
// <pluginsDir>/sitewright-plugin-<name>/ with manifest and module inside.
type packageSource struct {
	pluginsDir string
	open       ModuleOpener
}

func (s *packageSource) Kind() Source { return SourcePackage }

func (s *packageSource) Load(name string) (plugin.Plugin, plugin.Manifest, error) {
	var zero plugin.Manifest

	if s.pluginsDir == "" {
		return nil, zero, fmt.Errorf("no plugins directory configured: %w", errNotApplicable)
	}
	if looksScoped(name) || looksLikePath(name) {
		return nil, zero, fmt.Errorf("name %q is not a bare package name: %w", name, errNotApplicable)
	}

	dir := filepath.Join(s.pluginsDir, PackagePrefix+strings.TrimSpace(name))
	return loadFromDir(dir, s.open)
}

// scopedSource handles names of the form @scope/name, mapped to
// <pluginsDir>/@scope/name/.
type scopedSource struct {
	pluginsDir string
	open       ModuleOpener
}

func (s *scopedSource) Kind() Source { return SourceScoped }

var scopedNamePattern = regexp.MustCompile(`^@[\w.-]+/[\w.-]+$`)

func (s *scopedSource) Load(name string) (plugin.Plugin, plugin.Manifest, error) {
	var zero plugin.Manifest

	if s.pluginsDir == "" {
		return nil, zero, fmt.Errorf("no plugins directory configured: %w", errNotApplicable)
	}
	if !scopedNamePattern.MatchString(name) {
		return nil, zero, fmt.Errorf("name %q is not a scoped package: %w", name, errNotApplicable)
	}
	if pathTraversalPattern.MatchString(name) {
		return nil, zero, &ValidationError{Plugin: name, Reason: "scoped name contains path traversal"}
	}

	dir := filepath.Join(s.pluginsDir, filepath.FromSlash(name))
	if !isUnderDir(dir, s.pluginsDir) {
		return nil, zero, &ValidationError{Plugin: name, Reason: "scoped name escapes the plugins directory"}
	}
	return loadFromDir(dir, s.open)
}

// pathSource handles names that are filesystem paths, resolved against the
// project root when relative.
type pathSource struct {
	projectRoot string
	open        ModuleOpener
}

func (s *pathSource) Kind() Source { return SourcePath }

func (s *pathSource) Load(name string) (plugin.Plugin, plugin.Manifest, error) {
	var zero plugin.Manifest

	if !looksLikePath(name) {
		return nil, zero, fmt.Errorf("name %q is not a path: %w", name, errNotApplicable)
	}

	dir := name
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.projectRoot, dir)
	}
	return loadFromDir(dir, s.open)
}

// loadFromDir reads a plugin directory holding plugin.yaml and plugin.so.
// A missing manifest means the source does not apply; anything after that
// is a real failure.
func loadFromDir(dir string, open ModuleOpener) (plugin.Plugin, plugin.Manifest, error) {
	var zero plugin.Manifest

	manifestPath := filepath.Join(dir, manifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, zero, fmt.Errorf("no manifest at %s: %w", manifestPath, errNotApplicable)
		}
		return nil, zero, fmt.Errorf("reading manifest %s: %w", manifestPath, err)
	}

	var man plugin.Manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return nil, zero, fmt.Errorf("parsing manifest %s: %w", manifestPath, err)
	}

	impl, err := open(filepath.Join(dir, moduleFileName))
	if err != nil {
		return nil, zero, fmt.Errorf("loading module from %s: %w", dir, err)
	}
	return impl, man, nil
}

// openPluginModule loads a compiled Go plugin and asserts its exported
// Plugin symbol.
func openPluginModule(soPath string) (plugin.Plugin, error) {
	mod, err := goplugin.Open(soPath)
	if err != nil {
		return nil, fmt.Errorf("opening plugin module: %w", err)
	}

	sym, err := mod.Lookup("Plugin")
	if err != nil {
		return nil, fmt.Errorf("module does not export a Plugin symbol: %w", err)
	}

	impl, ok := sym.(plugin.Plugin)
	if !ok {
		return nil, fmt.Errorf("Plugin symbol does not implement plugin.Plugin")
	}
	return impl, nil
}

func looksScoped(name string) bool {
	return strings.HasPrefix(name, "@")
}

func looksLikePath(name string) bool {
	return strings.HasPrefix(name, "./") ||
		strings.HasPrefix(name, "../") ||
		strings.HasPrefix(name, ".\\") ||
		strings.HasPrefix(name, "..\\") ||
		filepath.IsAbs(name) ||
		strings.ContainsRune(name, os.PathSeparator)
}

// isUnderDir reports whether target resolves inside dir.
func isUnderDir(target, dir string) bool {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if absTarget == absDir {
		return true
	}
	return strings.HasPrefix(absTarget, absDir+string(filepath.Separator))
}
