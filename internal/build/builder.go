package build

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitewright/internal/config"
	"git.home.luguber.info/inful/sitewright/internal/content"
	"git.home.luguber.info/inful/sitewright/internal/depgraph"
	"git.home.luguber.info/inful/sitewright/internal/journal"
	"git.home.luguber.info/inful/sitewright/internal/logfields"
	"git.home.luguber.info/inful/sitewright/internal/metrics"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// Options configures a Builder. Config and Plugins are required; everything
// else defaults to a quiet no-op implementation.
type Options struct {
	Config      *config.Config
	ProjectRoot string
	Plugins     PluginHost
	Graph       *depgraph.Graph
	Journal     journal.Journal
	Metrics     metrics.Recorder
	Logger      *slog.Logger
}

// Builder executes full site builds. The same Builder is reused across
// builds in watch mode; each Run refreshes the dependency graph entries for
// the files it touches.
type Builder struct {
	cfg     *config.Config
	root    string
	plugins PluginHost
	graph   *depgraph.Graph
	journal journal.Journal
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewBuilder wires a Builder from options.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Config == nil {
		return nil, errors.New("build: options missing config")
	}
	if opts.Plugins == nil {
		return nil, errors.New("build: options missing plugin host")
	}
	b := &Builder{
		cfg:     opts.Config,
		root:    opts.ProjectRoot,
		plugins: opts.Plugins,
		graph:   opts.Graph,
		journal: opts.Journal,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if b.root == "" {
		b.root = "."
	}
	if b.graph == nil {
		b.graph = depgraph.New()
	}
	if b.journal == nil {
		b.journal = journal.Nop{}
	}
	if b.metrics == nil {
		b.metrics = metrics.NoopRecorder{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Graph exposes the dependency graph for watch-mode invalidation decisions.
func (b *Builder) Graph() *depgraph.Graph { return b.graph }

// buildState carries mutable state across the pipeline stages of one Run.
type buildState struct {
	buildID string
	started time.Time
	log     *slog.Logger

	outDir     string
	contentDir string

	layouts      *content.LayoutSet
	files        []string
	pages        []*plugin.Page
	sidebar      string
	assets       int
	failures     []PageFailure
	fingerprints map[string]string
}

type stage struct {
	name string
	fn   func(ctx context.Context, bs *buildState) error
}

// Run executes one full build. Problems with individual pages are recorded
// on the Result and do not abort the run; stage-level problems do.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	bs := &buildState{
		buildID:      uuid.NewString(),
		started:      time.Now(),
		outDir:       b.path(b.cfg.Output.Directory),
		contentDir:   b.path(b.cfg.ContentDir),
		fingerprints: map[string]string{},
	}
	bs.log = b.logger.With(logfields.BuildID(bs.buildID))
	b.plugins.SetBuildID(bs.buildID)

	bs.log.Info("build started", logfields.Path(bs.outDir))
	b.record(ctx, journal.Event{BuildID: bs.buildID, Type: journal.EventBuildStarted})

	err := b.runStages(ctx, bs)

	res := &Result{
		BuildID:      bs.buildID,
		Status:       StatusSuccess,
		Pages:        len(bs.pages),
		Assets:       bs.assets,
		Duration:     time.Since(bs.started),
		OutputDir:    bs.outDir,
		Failures:     bs.failures,
		Fingerprints: bs.fingerprints,
	}
	if err != nil {
		res.Status = StatusFailed
		b.plugins.ExecuteHook(ctx, plugin.HookBuildError, err.Error())
		b.metrics.IncBuildOutcome(outcomeFor(err))
		b.record(ctx, journal.Event{BuildID: bs.buildID, Type: journal.EventBuildFailed, Detail: err.Error()})
		bs.log.Error("build failed", logfields.Error(err))
		return res, err
	}

	stats := &plugin.BuildStats{
		BuildID:  bs.buildID,
		Pages:    res.Pages,
		Assets:   res.Assets,
		Duration: res.Duration,
		Output:   bs.outDir,
	}
	b.plugins.ExecuteHook(ctx, plugin.HookBuildEnd, stats)
	b.metrics.AddPagesBuilt(res.Pages)
	b.metrics.ObserveBuildDuration(res.Duration)
	b.metrics.IncBuildOutcome(metrics.OutcomeSuccess)
	b.record(ctx, journal.Event{
		BuildID: bs.buildID,
		Type:    journal.EventBuildFinished,
		Detail:  fmt.Sprintf("%d pages, %d assets, %d failed", res.Pages, res.Assets, len(res.Failures)),
	})
	bs.log.Info("build finished",
		logfields.Count(res.Pages),
		logfields.DurationMS(float64(res.Duration)/float64(time.Millisecond)))
	return res, nil
}

// runStages executes the pipeline in order, stopping on the first stage
// error. Cancellation is checked between stages; long stages check inside
// their own loops as well.
func (b *Builder) runStages(ctx context.Context, bs *buildState) error {
	stages := []stage{
		{"configure", b.stageConfigure},
		{"prepare-output", b.stagePrepareOutput},
		{"layouts", b.stageLayouts},
		{"discover", b.stageDiscover},
		{"pages", b.stageLoadPages},
		{"sidebar", b.stageSidebar},
		{"render", b.stageRender},
		{"assets", b.stageAssets},
		{"search", b.stageSearch},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		t0 := time.Now()
		if err := st.fn(ctx, bs); err != nil {
			return fmt.Errorf("%s stage: %w", st.name, err)
		}
		bs.log.Debug("stage finished",
			slog.String("stage", st.name),
			logfields.DurationMS(float64(time.Since(t0))/float64(time.Millisecond)))
	}
	return nil
}

// stageConfigure fires the hooks that let plugins see site settings before
// any file is touched.
func (b *Builder) stageConfigure(ctx context.Context, bs *buildState) error {
	b.plugins.ExecuteHook(ctx, plugin.HookConfigLoaded, nil)
	b.plugins.ExecuteHook(ctx, plugin.HookThemeLoaded, b.cfg.Theme, b.cfg.Raw())
	b.plugins.ExecuteHook(ctx, plugin.HookBuildStart, bs.buildID)
	return nil
}

// stagePrepareOutput cleans and recreates the output directory.
func (b *Builder) stagePrepareOutput(_ context.Context, bs *buildState) error {
	if b.cfg.Output.Clean {
		if err := os.RemoveAll(bs.outDir); err != nil {
			bs.log.Warn("failed to clean output directory", logfields.Path(bs.outDir), logfields.Error(err))
		}
	}
	if err := os.MkdirAll(bs.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// stageLayouts loads templates and records layout-to-partial edges in the
// dependency graph.
func (b *Builder) stageLayouts(_ context.Context, bs *buildState) error {
	layouts, err := content.LoadLayouts(b.path(b.cfg.TemplatesDir))
	if err != nil {
		return fmt.Errorf("load layouts: %w", err)
	}
	bs.layouts = layouts
	for _, name := range layouts.Names() {
		id := b.templateID(name)
		b.graph.ClearNode(id)
		for _, inc := range layouts.Includes(name) {
			b.graph.AddDependency(id, b.templateID(inc))
		}
	}
	return nil
}

func (b *Builder) stageDiscover(ctx context.Context, bs *buildState) error {
	files, err := discoverMarkdown(bs.contentDir)
	if err != nil {
		return err
	}
	bs.log.Info("content discovered", logfields.Count(len(files)))
	bs.files = hookValue(bs.log, plugin.HookFilesDiscovered,
		b.plugins.ExecuteHook(ctx, plugin.HookFilesDiscovered, files), files)
	return nil
}

// discoverMarkdown returns content-relative slash paths of every markdown
// file under dir, sorted. Dot-directories are skipped.
func discoverMarkdown(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !content.IsMarkdown(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk content dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// stageLoadPages reads, parses, and converts every discovered file. A page
// that fails is recorded and skipped; the rest of the site still builds.
func (b *Builder) stageLoadPages(ctx context.Context, bs *buildState) error {
	bs.pages = make([]*plugin.Page, 0, len(bs.files))
	for _, rel := range bs.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := b.loadPage(ctx, bs, rel)
		if err != nil {
			bs.log.Error("page build failed", logfields.Page(rel), logfields.Error(err))
			bs.failures = append(bs.failures, PageFailure{Path: rel, Err: err})
			continue
		}
		bs.pages = append(bs.pages, page)
		bs.fingerprints[rel] = page.Fingerprint
	}
	return nil
}

func (b *Builder) loadPage(ctx context.Context, bs *buildState, rel string) (*plugin.Page, error) {
	src := filepath.Join(bs.contentDir, filepath.FromSlash(rel))
	raw, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	fp := content.FileFingerprint(raw)

	fm, body, _, err := content.SplitFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}
	fields, err := content.ParseFrontmatter(fm)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	outRel, pageURL := content.PageOutput(rel)
	page := &plugin.Page{
		SourcePath:  src,
		RelPath:     rel,
		OutputPath:  filepath.Join(bs.outDir, filepath.FromSlash(outRel)),
		URL:         pageURL,
		Frontmatter: fields,
		Fingerprint: fp,
	}
	if info, err := os.Stat(src); err == nil {
		page.LastModified = info.ModTime()
	}

	md := hookValue(bs.log, plugin.HookMarkdownBeforeParse,
		b.plugins.ExecuteHook(ctx, plugin.HookMarkdownBeforeParse, string(body)), string(body))
	md = content.ExpandShortcodes(ctx, md, b.plugins.ExecuteShortcode)
	page.Markdown = []byte(md)

	html, err := content.RenderMarkdown(page.Markdown)
	if err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	page.HTML = hookValue(bs.log, plugin.HookMarkdownAfterParse,
		b.plugins.ExecuteHook(ctx, plugin.HookMarkdownAfterParse, html), html)

	page.Title = pageTitle(fields, page.Markdown, rel)

	page = hookValue(bs.log, plugin.HookPageBeforeRender,
		b.plugins.ExecuteHook(ctx, plugin.HookPageBeforeRender, page), page)

	b.recordPageDeps(page)
	return page, nil
}

// pageTitle resolves a page title: explicit frontmatter wins, then the
// first level-one heading, then the file name.
func pageTitle(fields map[string]any, markdown []byte, rel string) string {
	if t, ok := fields["title"].(string); ok && t != "" {
		return t
	}
	if h := content.FirstHeading(markdown); h != "" {
		return h
	}
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

func (b *Builder) stageSidebar(ctx context.Context, bs *buildState) error {
	bs.sidebar = b.buildSidebar(ctx, bs)
	return nil
}

// stageRender renders every loaded page through its layout and writes the
// result. Failures here are per-page too.
func (b *Builder) stageRender(ctx context.Context, bs *buildState) error {
	rendered := bs.pages[:0]
	for _, page := range bs.pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := b.renderPage(ctx, bs, page)
		if err != nil {
			bs.log.Error("page render failed", logfields.Page(page.RelPath), logfields.Error(err))
			bs.failures = append(bs.failures, PageFailure{Path: page.RelPath, Err: err})
			// No fingerprint for a failed page, or watch mode would skip
			// the rebuild that could fix it.
			delete(bs.fingerprints, page.RelPath)
			continue
		}
		rendered = append(rendered, out)
	}
	bs.pages = rendered
	return nil
}

func (b *Builder) renderPage(ctx context.Context, bs *buildState, page *plugin.Page) (*plugin.Page, error) {
	layout := layoutName(page)
	if !bs.layouts.Has(layout) {
		bs.log.Warn("layout not found, using default",
			logfields.Page(page.RelPath), slog.String("layout", layout))
		layout = content.DefaultLayoutName
	}
	data := content.PageData{
		Title:   page.Title,
		URL:     page.URL,
		Content: template.HTML(page.HTML),
		Sidebar: template.HTML(bs.sidebar),
		Site:    b.cfg.Raw(),
		Params:  page.Frontmatter,
	}
	doc, err := bs.layouts.Render(layout, data)
	if err != nil {
		return nil, fmt.Errorf("render layout %s: %w", layout, err)
	}
	page.HTML = doc

	page = hookValue(bs.log, plugin.HookPageAfterRender,
		b.plugins.ExecuteHook(ctx, plugin.HookPageAfterRender, page), page)
	page = hookValue(bs.log, plugin.HookPageBeforeWrite,
		b.plugins.ExecuteHook(ctx, plugin.HookPageBeforeWrite, page), page)

	if err := os.MkdirAll(filepath.Dir(page.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	if err := os.WriteFile(page.OutputPath, []byte(page.HTML), 0o644); err != nil {
		return nil, fmt.Errorf("write page: %w", err)
	}
	b.plugins.ExecuteHook(ctx, plugin.HookPageAfterWrite, page)

	b.recordAssetDeps(page)
	return page, nil
}

// stageSearch hands the page corpus to whatever indexes it. The pipeline
// writes no index itself; the search hooks carry the document list.
func (b *Builder) stageSearch(ctx context.Context, bs *buildState) error {
	docs := make([]plugin.SearchDocument, 0, len(bs.pages))
	for _, p := range bs.pages {
		docs = append(docs, plugin.SearchDocument{Title: p.Title, URL: p.URL, Text: string(p.Markdown)})
	}
	docs = hookValue(bs.log, plugin.HookSearchBeforeIndex,
		b.plugins.ExecuteHook(ctx, plugin.HookSearchBeforeIndex, docs), docs)
	b.plugins.ExecuteHook(ctx, plugin.HookSearchAfterIndex, docs)
	return nil
}

// recordPageDeps refreshes a page's graph node: its layout plus any
// relative links into other content files.
func (b *Builder) recordPageDeps(page *plugin.Page) {
	id := b.contentID(page.RelPath)
	b.graph.ClearNode(id)
	b.graph.AddDependency(id, b.templateID(layoutName(page)))

	dir := path.Dir(id)
	prefix := b.contentID("") + "/"
	for _, link := range content.ExtractLinks(page.Markdown) {
		dest := localDestination(link.Destination)
		if dest == "" {
			continue
		}
		resolved := path.Clean(path.Join(dir, dest))
		if !strings.HasPrefix(resolved, prefix) {
			continue
		}
		b.graph.AddDependency(id, resolved)
	}
}

// recordAssetDeps links a page to the site assets its rendered HTML
// references by absolute path.
func (b *Builder) recordAssetDeps(page *plugin.Page) {
	id := b.contentID(page.RelPath)
	prefix := b.assetID("") + "/"
	for _, ref := range content.AssetRefs(page.HTML) {
		cleaned := path.Clean(strings.TrimPrefix(ref, "/"))
		if strings.HasPrefix(cleaned, prefix) {
			b.graph.AddDependency(id, cleaned)
		}
	}
}

// layoutName returns the layout a page asked for, defaulting and appending
// the .html suffix when omitted.
func layoutName(page *plugin.Page) string {
	name, _ := page.Frontmatter["layout"].(string)
	if name == "" {
		return content.DefaultLayoutName
	}
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}

// localDestination reduces a markdown link target to a source-relative
// path, or "" when the link leaves the site.
func localDestination(dest string) string {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	p := u.Path
	if p == "" || strings.HasPrefix(p, "/") {
		return ""
	}
	return p
}

// path resolves a configured directory against the project root.
func (b *Builder) path(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(b.root, dir)
}

// Graph node ids are project-root-relative slash paths so watch mode can
// map filesystem events onto them directly.
func (b *Builder) contentID(rel string) string  { return nodeID(b.cfg.ContentDir, rel) }
func (b *Builder) templateID(rel string) string { return nodeID(b.cfg.TemplatesDir, rel) }
func (b *Builder) assetID(rel string) string    { return nodeID(b.cfg.AssetsDir, rel) }

func nodeID(dir, rel string) string {
	return path.Join(path.Clean(filepath.ToSlash(dir)), rel)
}

// hookValue narrows a hook's return value to the type the pipeline threaded
// in. A handler that replaced the value with something else entirely gets
// its result dropped with a warning instead of derailing the stage.
func hookValue[T any](log *slog.Logger, hook string, v any, prev T) T {
	out, ok := v.(T)
	if !ok {
		log.Warn("ignoring hook result of unexpected type",
			logfields.Hook(hook), slog.String("type", fmt.Sprintf("%T", v)))
		return prev
	}
	return out
}

func outcomeFor(err error) metrics.BuildOutcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeCanceled
	}
	return metrics.OutcomeFailed
}

func (b *Builder) record(ctx context.Context, ev journal.Event) {
	if err := b.journal.Record(ctx, ev); err != nil {
		b.logger.Warn("journal write failed", logfields.Error(err))
	}
}
