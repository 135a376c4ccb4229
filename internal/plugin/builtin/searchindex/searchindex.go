// Package searchindex is a builtin plugin that serializes the documents
// offered on the search indexing hook into a JSON file in the output tree.
// Plugins loaded before it may filter or enrich the document list.
package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"git.home.luguber.info/inful/sitewright/internal/plugin/builtin"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

const (
	defaultOutput       = "search-index.json"
	defaultMaxTextChars = 5000
)

// Plugin implements the searchindex builtin.
type Plugin struct {
	plugin.Base
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:        "searchindex",
		Version:     "1.0.0",
		Description: "Writes a JSON search index of all rendered pages",
		Author:      "sitewright",
		Provides:    []string{"search"},
		Config: map[string]any{
			"output":         defaultOutput,
			"max_text_chars": defaultMaxTextChars,
		},
	}
}

func (p *Plugin) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		plugin.HookSearchBeforeIndex: p.onBeforeIndex,
	}
}

func (p *Plugin) onBeforeIndex(_ context.Context, pc *plugin.Context, value any, _ ...any) (any, error) {
	docs, ok := value.([]plugin.SearchDocument)
	if !ok {
		return value, nil
	}

	maxChars := pc.ConfigInt("max_text_chars")
	if maxChars <= 0 {
		maxChars = defaultMaxTextChars
	}
	for i := range docs {
		if len(docs[i].Text) > maxChars {
			cut := maxChars
			for cut > 0 && !utf8.RuneStart(docs[i].Text[cut]) {
				cut--
			}
			docs[i].Text = docs[i].Text[:cut]
		}
	}

	name := pc.ConfigString("output")
	if name == "" {
		name = defaultOutput
	}
	path := filepath.Join(pc.OutputDir, name)

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding search index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing search index: %w", err)
	}

	pc.Logger.Info("search index written", "path", path, "documents", len(docs))
	return docs, nil
}

func init() {
	builtin.Register("searchindex", func() plugin.Plugin { return New() })
}
