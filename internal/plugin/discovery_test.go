package plugin

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitewright/internal/config"
)

func manifestBytes(name string) []byte {
	// Quoted so names with YAML indicator characters ("@acme/tools") parse.
	return []byte("name: \"" + name + "\"\nversion: 1.0.0\n")
}

func writeManifestDir(t *testing.T, dir string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), data, 0o644))
}

func TestBuildRegistryOrdersSources(t *testing.T) {
	pluginsDir := t.TempDir()
	projectRoot := t.TempDir()

	builtins := fstest.MapFS{
		"zeta/plugin.yaml":  &fstest.MapFile{Data: manifestBytes("zeta")},
		"alpha/plugin.yaml": &fstest.MapFile{Data: manifestBytes("alpha")},
	}
	writeManifestDir(t, filepath.Join(pluginsDir, PackagePrefix+"pkg"), manifestBytes("pkg"))
	writeManifestDir(t, filepath.Join(pluginsDir, "@acme", "tools"), manifestBytes("@acme/tools"))
	writeManifestDir(t, filepath.Join(projectRoot, "local", "mine"), manifestBytes("mine"))

	reg := BuildRegistry(DiscoveryConfig{
		BuiltinManifests: builtins,
		PluginsDir:       pluginsDir,
		ProjectRoot:      projectRoot,
		Refs: []config.PluginRef{
			{Name: "alpha", Enabled: true},
			{Name: "./local/mine", Enabled: true},
		},
		Logger: testLogger(),
	})

	// Builtins sorted, then package dirs, then scoped, then path refs.
	assert.Equal(t, []string{"alpha", "zeta", "pkg", "@acme/tools", "./local/mine"}, reg.Names())

	d, ok := reg.Get("./local/mine")
	require.True(t, ok)
	assert.Equal(t, SourcePath, d.Source)
	assert.Equal(t, "mine", d.Manifest.Name)
	assert.Equal(t, filepath.Join(projectRoot, "local", "mine"), d.Dir)
}

func TestBuildRegistrySkipsUnusableManifests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	builtins := fstest.MapFS{
		"good/plugin.yaml":     &fstest.MapFile{Data: manifestBytes("good")},
		"nameless/plugin.yaml": &fstest.MapFile{Data: []byte("version: 1.0.0\n")},
		"garbled/plugin.yaml":  &fstest.MapFile{Data: []byte("name: [unclosed")},
	}

	reg := BuildRegistry(DiscoveryConfig{BuiltinManifests: builtins, Logger: logger})

	assert.Equal(t, []string{"good"}, reg.Names())
	out := buf.String()
	assert.Contains(t, out, "without a name")
	assert.Contains(t, out, "unparsable")
}

func TestBuildRegistrySkipsDuplicateNames(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	pluginsDir := t.TempDir()
	builtins := fstest.MapFS{
		"dup/plugin.yaml": &fstest.MapFile{Data: manifestBytes("dup")},
	}
	writeManifestDir(t, filepath.Join(pluginsDir, PackagePrefix+"dup"), manifestBytes("dup"))

	reg := BuildRegistry(DiscoveryConfig{
		BuiltinManifests: builtins,
		PluginsDir:       pluginsDir,
		Logger:           logger,
	})

	require.Equal(t, []string{"dup"}, reg.Names())
	d, _ := reg.Get("dup")
	assert.Equal(t, SourceBuiltin, d.Source, "first discovery wins")
	assert.Contains(t, buf.String(), "already registered")
}

func TestBuildRegistryToleratesMissingDirs(t *testing.T) {
	reg := BuildRegistry(DiscoveryConfig{
		PluginsDir:  filepath.Join(t.TempDir(), "nope"),
		ProjectRoot: t.TempDir(),
		Logger:      testLogger(),
	})
	assert.Zero(t, reg.Len())
}

func TestBuildRegistryIgnoresNonPluginEntries(t *testing.T) {
	pluginsDir := t.TempDir()
	// A package dir without a manifest and a stray file are not plugins.
	require.NoError(t, os.MkdirAll(filepath.Join(pluginsDir, PackagePrefix+"empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginsDir, "README.md"), []byte("hi"), 0o644))
	// Scoped refs are not path refs even though they contain a slash.
	reg := BuildRegistry(DiscoveryConfig{
		PluginsDir:  pluginsDir,
		ProjectRoot: t.TempDir(),
		Refs:        []config.PluginRef{{Name: "@acme/ghost", Enabled: true}},
		Logger:      testLogger(),
	})
	assert.Zero(t, reg.Len())
}
