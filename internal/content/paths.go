package content

import (
	"path"
	"path/filepath"
	"strings"
)

// PageOutput maps a source-relative markdown path to its output file path
// and site URL, both slash-separated. Pages get pretty URLs:
//
//	docs/Getting Started.md -> docs/getting-started/index.html, /docs/getting-started/
//	docs/index.md           -> docs/index.html,                 /docs/
//
// Directory segments are slugified the same way as file names.
func PageOutput(rel string) (outPath, url string) {
	rel = filepath.ToSlash(rel)
	dir, file := path.Split(rel)

	segs := make([]string, 0, 8)
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		if seg == "" {
			continue
		}
		if slug := Slugify(seg); slug != "" {
			segs = append(segs, slug)
		}
	}

	stem := strings.TrimSuffix(file, path.Ext(file))
	if strings.EqualFold(stem, "index") {
		outPath = path.Join(append(segs, "index.html")...)
		url = "/" + strings.Join(segs, "/")
	} else {
		slug := Slugify(stem)
		if slug == "" {
			slug = "untitled"
		}
		segs = append(segs, slug)
		outPath = path.Join(append(segs, "index.html")...)
		url = "/" + strings.Join(segs, "/")
	}

	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return outPath, url
}

// IsMarkdown reports whether a path names a markdown source file.
func IsMarkdown(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
