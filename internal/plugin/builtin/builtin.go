// Package builtin hosts the plugins compiled into sitewright itself.
//
// Each builtin lives in its own subpackage next to a plugin.yaml manifest
// embedded here. Subpackages register their factory from init, so a blank
// import is all a binary needs to carry a builtin:
//
//	import _ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/gitmeta"
package builtin

import (
	"embed"
	"io/fs"
	"sort"
	"sync"

	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

//go:embed */plugin.yaml
var manifestFS embed.FS

var (
	mu        sync.RWMutex
	factories = map[string]func() plugin.Plugin{}
)

// Register makes a builtin available under name. It is called from the
// subpackages' init functions and panics on a duplicate name, mirroring
// database/sql driver registration.
func Register(name string, factory func() plugin.Plugin) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("builtin: plugin registered twice: " + name)
	}
	factories[name] = factory
}

// Manifests returns the embedded manifest tree, one <name>/plugin.yaml per
// builtin.
func Manifests() fs.FS {
	return manifestFS
}

// Factory constructs the implementation for a builtin name.
func Factory(name string) (plugin.Plugin, bool) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names returns the registered builtin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
