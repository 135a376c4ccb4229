// Package plugin implements the build pipeline's plugin subsystem: manifest
// discovery, dependency resolution, loading, and lifecycle orchestration.
package plugin

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// Source identifies which loading strategy owns a plugin.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourcePackage Source = "package"
	SourceScoped  Source = "scoped"
	SourcePath    Source = "path"
)

// Descriptor pairs a discovered manifest with where it came from.
type Descriptor struct {
	Manifest plugin.Manifest
	Source   Source

	// Ref is the name the plugin is requested by. Discovery leaves it
	// empty (the manifest name applies) except for path references, which
	// stay requestable by the path the site configuration used.
	Ref string

	// Dir is the plugin directory for on-disk sources, empty for builtins.
	Dir string
}

// Key returns the registry key: Ref when set, the manifest name otherwise.
func (d Descriptor) Key() string {
	if d.Ref != "" {
		return d.Ref
	}
	return d.Manifest.Name
}

// Registry holds the manifests of every discoverable plugin, in discovery
// order. That order drives capability resolution (first provider wins), so
// discovery keeps it deterministic: builtins sorted by name, then scanned
// packages sorted by directory, then config-order path entries.
type Registry struct {
	order   []string
	entries map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Descriptor)}
}

// Add registers a descriptor. Entries without a name or with a name already
// registered are rejected; discovery downgrades those to warnings.
func (r *Registry) Add(d Descriptor) error {
	if strings.TrimSpace(d.Manifest.Name) == "" {
		return fmt.Errorf("manifest without a name (source %s, dir %q)", d.Source, d.Dir)
	}
	key := d.Key()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("plugin %q already registered", key)
	}
	r.entries[key] = d
	r.order = append(r.order, key)
	return nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.entries[name]
	return d, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns all registered names in discovery order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all descriptors in discovery order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// ProvidersOf returns the plugins declaring capability in their provides
// list, in discovery order.
func (r *Registry) ProvidersOf(capability string) []Descriptor {
	var out []Descriptor
	for _, name := range r.order {
		d := r.entries[name]
		for _, p := range d.Manifest.Provides {
			if p == capability {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	return len(r.order)
}
