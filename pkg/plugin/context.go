package plugin

import (
	"log/slog"
)

// Context gives plugin handlers access to build services and shared state.
// The manager creates one per plugin so Config always holds the receiving
// plugin's resolved configuration; Site and Data are shared across plugins.
type Context struct {
	// Logger provides structured logging, pre-tagged with the plugin name.
	Logger *slog.Logger

	// Site is the raw site configuration as loaded from site.yaml.
	Site map[string]any

	// Config is this plugin's resolved configuration: manifest defaults
	// merged with the user's site.yaml overrides.
	Config map[string]any

	// SiteDir is the project root containing site.yaml.
	SiteDir string

	// OutputDir is where the rendered site is written.
	OutputDir string

	// BuildID uniquely identifies the current build.
	BuildID string

	// Data is shared between all plugins during a build, letting them pass
	// state to each other without direct dependencies.
	Data map[string]any
}

// ForPlugin returns a copy of the context scoped to another plugin:
// same shared Site and Data, its own logger tag and resolved config.
func (pc *Context) ForPlugin(name string, config map[string]any) *Context {
	clone := *pc
	clone.Logger = pc.Logger.With("plugin", name)
	clone.Config = config
	return &clone
}

// GetString retrieves a string from the shared data map.
// Returns "" if the key is missing or not a string.
func (pc *Context) GetString(key string) string {
	v, _ := pc.Data[key].(string)
	return v
}

// GetBool retrieves a bool from the shared data map.
// Returns false if the key is missing or not a bool.
func (pc *Context) GetBool(key string) bool {
	v, _ := pc.Data[key].(bool)
	return v
}

// GetInt retrieves an int from the shared data map.
// Returns 0 if the key is missing or not an int.
func (pc *Context) GetInt(key string) int {
	v, _ := pc.Data[key].(int)
	return v
}

// ConfigString retrieves a string from the plugin's resolved configuration.
func (pc *Context) ConfigString(key string) string {
	v, _ := pc.Config[key].(string)
	return v
}

// ConfigBool retrieves a bool from the plugin's resolved configuration.
func (pc *Context) ConfigBool(key string) bool {
	v, _ := pc.Config[key].(bool)
	return v
}

// ConfigInt retrieves an int from the plugin's resolved configuration.
// YAML decodes whole numbers as int; values merged from JSON arrive as
// float64, so both are accepted.
func (pc *Context) ConfigInt(key string) int {
	switch v := pc.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
