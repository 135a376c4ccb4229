// Package build runs the site build pipeline: discover content, render
// pages through their layouts, copy assets, and index for search. Every
// stage fires its hook point through the plugin host, so plugins observe
// and reshape the build without the pipeline knowing them by name.
package build

import (
	"context"
	"time"

	pluginmgr "git.home.luguber.info/inful/sitewright/internal/plugin"
)

// PluginHost is what the pipeline needs from the plugin manager.
type PluginHost interface {
	ExecuteHook(ctx context.Context, hook string, value any, args ...any) any
	ExecuteShortcode(ctx context.Context, name string, attrs map[string]string, content string) (string, bool)
	SetBuildID(id string)
	Instances() []*pluginmgr.Instance
}

// Status is the terminal outcome of a build.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// PageFailure records a page that could not be built. Page failures do not
// abort the build; the rest of the site still renders.
type PageFailure struct {
	Path string
	Err  error
}

// Result describes a finished build.
type Result struct {
	BuildID   string
	Status    Status
	Pages     int
	Assets    int
	Duration  time.Duration
	OutputDir string
	Failures  []PageFailure

	// Fingerprints maps each built page's content-relative path to its
	// content fingerprint. Watch mode uses it to skip rebuilds for writes
	// that did not change anything.
	Fingerprints map[string]string
}
