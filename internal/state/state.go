// Package state persists build state between runs. The plugin manager uses
// it to remember which plugins were loaded last time, so plugins removed
// from site.yaml get a cleanup pass on the next build.
package state

import "time"

// BuildState is the persisted snapshot written after a successful
// plugin initialization.
type BuildState struct {
	// LoadedPlugins are the plugin names requested by the site
	// configuration at the time of the last successful initialization.
	LoadedPlugins []string `json:"loaded_plugins"`

	// UpdatedAt is when the snapshot was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store loads and saves build state. Load returns a zero-value state when
// nothing has been persisted yet.
type Store interface {
	Load() (BuildState, error)
	Save(BuildState) error
}
