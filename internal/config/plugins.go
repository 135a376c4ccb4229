package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PluginRef is one entry of the plugins list. It accepts two YAML shapes:
//
//	plugins:
//	  - gitmeta
//	  - name: searchindex
//	    enabled: false
//	    config:
//	      exclude: ["drafts/**"]
type PluginRef struct {
	Name    string         `yaml:"name"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// UnmarshalYAML accepts either a bare plugin name or a mapping.
// Enabled defaults to true when omitted.
func (p *PluginRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Name = node.Value
		p.Enabled = true
		return nil
	}

	var raw struct {
		Name    string         `yaml:"name"`
		Enabled *bool          `yaml:"enabled"`
		Config  map[string]any `yaml:"config"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("plugin entry: %w", err)
	}

	p.Name = raw.Name
	p.Enabled = raw.Enabled == nil || *raw.Enabled
	p.Config = raw.Config
	return nil
}

// PluginNames returns the names of all plugin entries, disabled ones
// included, in configuration order.
func (c *Config) PluginNames() []string {
	names := make([]string, 0, len(c.Plugins))
	for _, ref := range c.Plugins {
		names = append(names, ref.Name)
	}
	return names
}

// PluginConfig returns the user configuration for the named plugin, or nil.
func (c *Config) PluginConfig(name string) map[string]any {
	for _, ref := range c.Plugins {
		if ref.Name == name {
			return ref.Config
		}
	}
	return nil
}
