package plugin

import "time"

// Page is the unit of content flowing through the build pipeline. Hook
// handlers on the page lifecycle hooks receive a *Page as the running
// value and may mutate it or return a replacement.
type Page struct {
	// SourcePath is the absolute path of the markdown source file.
	SourcePath string

	// RelPath is the path relative to the content directory, using
	// forward slashes.
	RelPath string

	// OutputPath is the absolute path the rendered page is written to.
	OutputPath string

	// URL is the site-absolute URL path with a leading slash.
	URL string

	Title       string
	Frontmatter map[string]any

	// Markdown is the source body with frontmatter removed.
	Markdown []byte

	// HTML is the rendered body, populated after markdown parsing.
	HTML string

	// Fingerprint identifies this revision of the page content.
	Fingerprint string

	LastModified time.Time
}

// SearchDocument is one entry of the generated search index.
type SearchDocument struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// BuildStats summarizes a finished build. It is the value passed to the
// build end hook.
type BuildStats struct {
	BuildID  string        `json:"build_id"`
	Pages    int           `json:"pages"`
	Assets   int           `json:"assets"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output"`
}
