package plugin

import (
	"fmt"
	"strings"
)

// Manifest describes a plugin's identity, dependencies, and defaults.
// On-disk plugins declare it in plugin.yaml; builtin plugins embed it.
type Manifest struct {
	// Name is the unique plugin identifier (e.g. "gitmeta", "@acme/analytics").
	Name string `yaml:"name" json:"name"`

	// Version is the plugin's semantic version without a "v" prefix
	// (e.g. "1.2.0"). The loader rejects anything that is not strict semver.
	Version string `yaml:"version" json:"version"`

	// Description is a human-readable summary of what the plugin does.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Author is the plugin creator or maintainer.
	Author string `yaml:"author,omitempty" json:"author,omitempty"`

	// Provides lists capability names this plugin can satisfy when another
	// plugin requires a capability instead of a concrete plugin name.
	Provides []string `yaml:"provides,omitempty" json:"provides,omitempty"`

	// Dependencies declares the plugins (or capabilities) this plugin needs.
	Dependencies Dependencies `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// Config holds the plugin's default configuration. User configuration
	// from site.yaml is merged over it key by key.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Dependencies separates hard requirements from optional enhancements.
// Required entries may name a concrete plugin or a capability; optional
// entries are loaded only when present.
type Dependencies struct {
	Required []string `yaml:"required,omitempty" json:"required,omitempty"`
	Optional []string `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// String returns a human-readable representation of the manifest.
func (m Manifest) String() string {
	if m.Version == "" {
		return m.Name
	}
	return fmt.Sprintf("%s@%s", m.Name, m.Version)
}

// Validate checks the structural minimum for a manifest: a non-blank name.
// Version strictness and function wiring are checked by the loader.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("plugin name is required")
	}
	return nil
}
