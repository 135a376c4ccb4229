package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "title: Docs\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Docs", cfg.Title)
	assert.Equal(t, "content", cfg.ContentDir)
	assert.Equal(t, "templates", cfg.TemplatesDir)
	assert.Equal(t, "./public", cfg.Output.Directory)
	assert.True(t, cfg.Output.Clean)
	assert.Equal(t, "./plugins", cfg.PluginsDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 400*time.Millisecond, cfg.Watch.QuietWindow)
	assert.Equal(t, 5*time.Second, cfg.Watch.MaxDelay)
	assert.Equal(t, filepath.Join(".sitewright", "journal.db"), cfg.Journal.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "title: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("SITE_BASE", "https://docs.internal.example")
	path := writeConfig(t, "title: Docs\nbase_url: ${SITE_BASE}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.internal.example", cfg.BaseURL)
}

func TestLoadRejectsDuplicatePlugins(t *testing.T) {
	path := writeConfig(t, `
title: Docs
plugins:
  - gitmeta
  - gitmeta
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listed twice")
}

func TestLoadRejectsQuietWindowAboveMaxDelay(t *testing.T) {
	path := writeConfig(t, `
title: Docs
watch:
  quiet_window: 10s
  max_delay: 1s
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadKeepsRawMap(t *testing.T) {
	path := writeConfig(t, `
title: Docs
custom_section:
  anything: goes
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	raw := cfg.Raw()
	require.NotNil(t, raw)
	assert.Equal(t, "Docs", raw["title"])
	custom, ok := raw["custom_section"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "goes", custom["anything"])
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	require.NoError(t, Init(path, false))

	// Refuses to overwrite without force.
	err := Init(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "My Documentation Site", cfg.Title)
	require.Len(t, cfg.Plugins, 2)
	assert.Equal(t, "gitmeta", cfg.Plugins[0].Name)
}

func TestNormalizeLogLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"", LogLevelInfo},
		{"bogus", LogLevelInfo},
	}
	for _, tt := range tests {
		if got := NormalizeLogLevel(tt.raw); got != tt.want {
			t.Errorf("NormalizeLogLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeLogFormat(t *testing.T) {
	if got := NormalizeLogFormat("JSON"); got != LogFormatJSON {
		t.Errorf("NormalizeLogFormat(JSON) = %v", got)
	}
	if got := NormalizeLogFormat("fancy"); got != LogFormatText {
		t.Errorf("NormalizeLogFormat(fancy) = %v", got)
	}
}
