// Package journal records build lifecycle events to a persistent log.
//
// Every build appends events (build started, plugin loaded, handler
// failures, build finished) keyed by build ID. The log survives across
// runs so regressions introduced by a plugin change can be traced to
// the build that first exhibited them.
package journal

import (
	"context"
	"time"
)

// EventType names a journal event category.
type EventType string

const (
	EventBuildStarted    EventType = "build_started"
	EventBuildFinished   EventType = "build_finished"
	EventBuildFailed     EventType = "build_failed"
	EventPluginLoaded    EventType = "plugin_loaded"
	EventHandlerFailed   EventType = "handler_failed"
	EventShortcodeFailed EventType = "shortcode_failed"
)

// Event is a single journal entry. ID and At are assigned by the
// journal on insert.
type Event struct {
	ID      int64
	BuildID string
	Type    EventType
	Plugin  string
	Hook    string
	Detail  string
	At      time.Time
}

// Journal persists and retrieves build events.
type Journal interface {
	// Record appends an event to the journal.
	Record(ctx context.Context, ev Event) error

	// ByBuild retrieves all events for a build in insertion order.
	ByBuild(ctx context.Context, buildID string) ([]Event, error)

	// Recent retrieves the most recent events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close releases underlying resources.
	Close() error
}

// Nop is a Journal that discards everything. It is the default when
// journaling is disabled in the site configuration.
type Nop struct{}

func (Nop) Record(context.Context, Event) error              { return nil }
func (Nop) ByBuild(context.Context, string) ([]Event, error) { return nil, nil }
func (Nop) Recent(context.Context, int) ([]Event, error)     { return nil, nil }
func (Nop) Close() error                                     { return nil }
