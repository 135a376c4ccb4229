package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// errNotApplicable is returned by a plugin source that does not handle the
// requested name, telling the loader to try the next source. It never
// escapes the loader.
var errNotApplicable = errors.New("source not applicable")

// ValidationError reports a plugin that loaded but failed structural
// validation: bad version, missing name, nil handler functions.
type ValidationError struct {
	Plugin string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plugin %q invalid: %s", e.Plugin, e.Reason)
}

// NotFoundError reports a plugin that no source could load.
type NotFoundError struct {
	Name string
	// Tried lists the sources consulted, with the reason each passed.
	Tried []string
}

func (e *NotFoundError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("plugin %q not found", e.Name)
	}
	return fmt.Sprintf("plugin %q not found (tried %s)", e.Name, strings.Join(e.Tried, "; "))
}

// CycleError reports a circular dependency. Chain holds the plugin names
// from the first request down to the repeated one.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular plugin dependency: %s", strings.Join(e.Chain, " -> "))
}

// CapabilityError reports a required capability no registered plugin
// provides.
type CapabilityError struct {
	Capability string
	RequiredBy string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("no plugin provides capability %q (required by %q)", e.Capability, e.RequiredBy)
}

// RuntimeHookError attributes a handler failure to its plugin and hook.
// It is logged and journaled but never propagated out of hook execution.
type RuntimeHookError struct {
	Hook   string
	Plugin string
	Err    error
}

func (e *RuntimeHookError) Error() string {
	return fmt.Sprintf("hook %s: plugin %s failed: %v", e.Hook, e.Plugin, e.Err)
}

// Unwrap returns the underlying handler error.
func (e *RuntimeHookError) Unwrap() error {
	return e.Err
}
