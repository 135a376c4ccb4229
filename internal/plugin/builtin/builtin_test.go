package builtin_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitewright/internal/plugin/builtin"
	_ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/gitmeta"
	_ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/notify"
	_ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/searchindex"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

func TestEveryBuiltinHasManifestAndFactory(t *testing.T) {
	names := builtin.Names()
	require.Equal(t, []string{"gitmeta", "notify", "searchindex"}, names)

	for _, name := range names {
		raw, err := fs.ReadFile(builtin.Manifests(), name+"/plugin.yaml")
		require.NoError(t, err, "embedded manifest for %s", name)

		var man plugin.Manifest
		require.NoError(t, yaml.Unmarshal(raw, &man))
		assert.Equal(t, name, man.Name, "manifest name must match directory")
		require.NoError(t, man.Validate())

		impl, ok := builtin.Factory(name)
		require.True(t, ok, "factory for %s", name)
		assert.Equal(t, man.Name, impl.Manifest().Name)
		assert.Equal(t, man.Version, impl.Manifest().Version)
	}
}

func TestFactoryUnknownName(t *testing.T) {
	_, ok := builtin.Factory("nope")
	assert.False(t, ok)
}

func TestFactoryReturnsFreshInstances(t *testing.T) {
	a, ok := builtin.Factory("gitmeta")
	require.True(t, ok)
	b, ok := builtin.Factory("gitmeta")
	require.True(t, ok)
	assert.NotSame(t, a, b)
}
