// Package gitmeta is a builtin plugin that fills page metadata from the
// site's git history: last modified date and author of the most recent
// commit touching each source file. Frontmatter values set by the page
// author always win.
package gitmeta

import (
	"context"
	"fmt"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/sitewright/internal/plugin/builtin"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

const defaultDateFormat = "2006-01-02"

// Plugin implements the gitmeta builtin.
type Plugin struct {
	plugin.Base

	repo     *git.Repository
	workRoot string
	opened   bool
}

// New creates the plugin. The repository is opened lazily on build start.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:        "gitmeta",
		Version:     "1.0.0",
		Description: "Fills page metadata from git history (last modified date, author)",
		Author:      "sitewright",
		Provides:    []string{"metadata"},
		Config: map[string]any{
			"date_format": defaultDateFormat,
			"set_author":  true,
		},
	}
}

func (p *Plugin) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		plugin.HookBuildStart:       p.onBuildStart,
		plugin.HookPageBeforeRender: p.onPageBeforeRender,
	}
}

func (p *Plugin) Shortcodes() map[string]plugin.ShortcodeFunc {
	return map[string]plugin.ShortcodeFunc{
		"lastmod": p.lastmodShortcode,
	}
}

func (p *Plugin) onBuildStart(_ context.Context, pc *plugin.Context, value any, _ ...any) (any, error) {
	p.open(pc)
	return value, nil
}

// open locates the enclosing repository once per process. A site outside
// git is not an error; the plugin just stays inert.
func (p *Plugin) open(pc *plugin.Context) {
	if p.opened {
		return
	}
	p.opened = true

	repo, err := git.PlainOpenWithOptions(pc.SiteDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		pc.Logger.Warn("site is not in a git repository, metadata disabled", "error", err.Error())
		return
	}
	wt, err := repo.Worktree()
	if err != nil {
		pc.Logger.Warn("could not open git worktree, metadata disabled", "error", err.Error())
		return
	}
	p.repo = repo
	p.workRoot = wt.Filesystem.Root()
}

func (p *Plugin) onPageBeforeRender(_ context.Context, pc *plugin.Context, value any, _ ...any) (any, error) {
	page, ok := value.(*plugin.Page)
	if !ok || p.repo == nil {
		return value, nil
	}

	rel, err := filepath.Rel(p.workRoot, page.SourcePath)
	if err != nil {
		return value, nil
	}
	rel = filepath.ToSlash(rel)

	commit, err := p.lastCommit(&rel)
	if err != nil {
		// Untracked files have no history; leave the page alone.
		return value, nil
	}

	if page.Frontmatter == nil {
		page.Frontmatter = make(map[string]any)
	}
	format := pc.ConfigString("date_format")
	if format == "" {
		format = defaultDateFormat
	}
	if _, set := page.Frontmatter["lastmod"]; !set {
		page.Frontmatter["lastmod"] = commit.Author.When.Format(format)
	}
	page.LastModified = commit.Author.When
	if pc.ConfigBool("set_author") {
		if _, set := page.Frontmatter["author"]; !set {
			page.Frontmatter["author"] = commit.Author.Name
		}
	}
	return page, nil
}

// lastCommit returns the most recent commit touching rel, or the most
// recent commit overall when rel is nil.
func (p *Plugin) lastCommit(rel *string) (*object.Commit, error) {
	opts := &git.LogOptions{Order: git.LogOrderCommitterTime}
	if rel != nil {
		opts.FileName = rel
	}
	iter, err := p.repo.Log(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	return iter.Next()
}

// lastmodShortcode renders the last commit date, for the file named by the
// path attribute or for the repository as a whole.
func (p *Plugin) lastmodShortcode(_ context.Context, pc *plugin.Context, attrs map[string]string, _ string) (string, error) {
	if p.repo == nil {
		return "", fmt.Errorf("site is not in a git repository")
	}

	var rel *string
	if path := attrs["path"]; path != "" {
		slashed := filepath.ToSlash(path)
		rel = &slashed
	}
	commit, err := p.lastCommit(rel)
	if err != nil {
		return "", fmt.Errorf("no history for %v: %w", attrs["path"], err)
	}

	format := pc.ConfigString("date_format")
	if format == "" {
		format = defaultDateFormat
	}
	return commit.Author.When.Format(format), nil
}

func init() {
	builtin.Register("gitmeta", func() plugin.Plugin { return New() })
}
