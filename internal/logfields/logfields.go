package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPlugin     = "plugin"
	KeyHook       = "hook"
	KeyShortcode  = "shortcode"
	KeyCapability = "capability"
	KeyVersion    = "version"
	KeySource     = "source"
	KeyBuildID    = "build_id"
	KeyPage       = "page"
	KeyPath       = "path"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Plugin(name string) slog.Attr    { return slog.String(KeyPlugin, name) }
func Hook(name string) slog.Attr      { return slog.String(KeyHook, name) }
func Shortcode(name string) slog.Attr { return slog.String(KeyShortcode, name) }
func Capability(c string) slog.Attr   { return slog.String(KeyCapability, c) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Page(p string) slog.Attr         { return slog.String(KeyPage, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
