// Package plugin provides the public API for sitewright plugin authors.
//
// Plugins extend the build pipeline with hook handlers, shortcodes, and
// components. They can be compiled into the binary (builtin plugins) or
// built as Go plugins (.so files) discovered next to a plugin.yaml manifest.
//
// Example Go plugin:
//
//	package main
//
//	import "git.home.luguber.info/inful/sitewright/pkg/plugin"
//
//	type ReadingTime struct {
//		plugin.Base
//	}
//
//	func (p *ReadingTime) Manifest() plugin.Manifest {
//		return plugin.Manifest{
//			Name:    "reading-time",
//			Version: "1.0.0",
//		}
//	}
//
//	func (p *ReadingTime) Hooks() map[string]plugin.HookFunc {
//		return map[string]plugin.HookFunc{
//			plugin.HookMarkdownAfterParse: p.annotate,
//		}
//	}
//
//	var Plugin ReadingTime // exported symbol "Plugin" required for .so plugins
package plugin

import (
	"context"
	"io/fs"
)

// Plugin is the interface every sitewright plugin implements.
// Embed Base to get no-op defaults for the registration methods.
type Plugin interface {
	// Manifest returns the plugin's identity and dependency declarations.
	// For plugins loaded from disk the manifest file takes precedence; the
	// loader rejects plugins whose compiled name disagrees with it.
	Manifest() Manifest

	// Hooks returns the hook handlers this plugin contributes, keyed by
	// hook name. Handlers run in plugin load order.
	Hooks() map[string]HookFunc

	// Shortcodes returns the shortcode renderers this plugin contributes,
	// keyed by shortcode name. A later plugin registering the same name
	// replaces the earlier one.
	Shortcodes() map[string]ShortcodeFunc

	// Components returns the component renderers this plugin contributes.
	// Components follow the same registration rules as shortcodes.
	Components() map[string]ShortcodeFunc
}

// Cleaner is implemented by plugins that hold external resources.
// Cleanup runs when a previously loaded plugin is removed from the site
// configuration, and during shutdown.
type Cleaner interface {
	Cleanup(ctx context.Context, pc *Context) error
}

// AssetProvider is implemented by plugins that ship static assets to be
// copied into the output tree.
type AssetProvider interface {
	Assets() fs.FS
}

// HookFunc is a hook handler. The running value of the hook pipeline is
// passed as value; returning a non-nil result replaces it for the next
// handler, returning nil keeps it. Returned errors are logged and isolated,
// they never abort the pipeline.
type HookFunc func(ctx context.Context, pc *Context, value any, args ...any) (any, error)

// ShortcodeFunc renders a shortcode or component invocation. attrs holds the
// parsed key="value" attributes, content the inner body for paired forms.
type ShortcodeFunc func(ctx context.Context, pc *Context, attrs map[string]string, content string) (string, error)

// Base provides no-op defaults for the optional registration methods.
// Plugins embed it and override what they provide.
type Base struct{}

// Hooks returns no hook handlers.
func (Base) Hooks() map[string]HookFunc { return nil }

// Shortcodes returns no shortcode renderers.
func (Base) Shortcodes() map[string]ShortcodeFunc { return nil }

// Components returns no component renderers.
func (Base) Components() map[string]ShortcodeFunc { return nil }
