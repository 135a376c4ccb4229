// Package watch rebuilds the site when project files change.
//
// Every effective change set triggers a full rebuild. The dependency graph
// and content fingerprints are used the other way around: to prove that a
// change set cannot influence the rendered output, in which case the
// rebuild is skipped entirely. Typical skips are editor writes that leave
// the content byte-identical and scratch files outside the site trees.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitewright/internal/build"
	"git.home.luguber.info/inful/sitewright/internal/config"
	"git.home.luguber.info/inful/sitewright/internal/content"
	"git.home.luguber.info/inful/sitewright/internal/logfields"
)

// Options configures a watch Runner. Config and Builder are required.
type Options struct {
	Config      *config.Config
	ProjectRoot string
	Builder     *build.Builder
	Logger      *slog.Logger

	// MetricsHandler is served at /metrics on Watch.MetricsListen while
	// watching. Nil disables the listener regardless of configuration.
	MetricsHandler http.Handler
}

// Runner owns the watch loop: one initial build, then rebuilds driven by
// debounced file system batches and the optional full-rebuild schedule.
type Runner struct {
	cfg     *config.Config
	root    string
	builder *build.Builder
	logger  *slog.Logger
	metrics http.Handler

	contentPrefix   string
	templatesPrefix string
	assetsPrefix    string
	outPrefix       string

	// prints holds the fingerprints of the last successful build, keyed by
	// content-relative path.
	prints map[string]string
}

// NewRunner wires a Runner from options.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("watch: options missing config")
	}
	if opts.Builder == nil {
		return nil, errors.New("watch: options missing builder")
	}
	r := &Runner{
		cfg:     opts.Config,
		root:    opts.ProjectRoot,
		builder: opts.Builder,
		logger:  opts.Logger,
		metrics: opts.MetricsHandler,
	}
	if r.root == "" {
		r.root = "."
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.contentPrefix = cleanRel(opts.Config.ContentDir)
	r.templatesPrefix = cleanRel(opts.Config.TemplatesDir)
	r.assetsPrefix = cleanRel(opts.Config.AssetsDir)
	r.outPrefix = cleanRel(opts.Config.Output.Directory)
	return r, nil
}

func cleanRel(dir string) string {
	return path.Clean(filepath.ToSlash(dir))
}

// Run builds once, then watches until ctx is canceled. A failing build does
// not stop the loop; the next change gets another chance.
func (r *Runner) Run(ctx context.Context) error {
	if res, err := r.builder.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		r.logger.Error("initial build failed", logfields.Error(err))
	} else {
		r.prints = res.Fingerprints
	}

	deb := NewDebouncer(r.cfg.Watch.QuietWindow, r.cfg.Watch.MaxDelay)
	watcher, err := NewWatcher(r.root, r.skipPath, deb, r.logger)
	if err != nil {
		return err
	}
	go deb.Run(ctx)
	go watcher.Run(ctx)

	force := make(chan string, 1)
	if interval := r.cfg.Watch.FullRebuildInterval; interval > 0 {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		if _, err := scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				select {
				case force <- "schedule":
				default:
				}
			}),
			gocron.WithName("full-rebuild"),
		); err != nil {
			return fmt.Errorf("schedule full rebuilds: %w", err)
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				r.logger.Warn("scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	if addr := r.cfg.Watch.MetricsListen; addr != "" && r.metrics != nil {
		r.serveMetrics(ctx, addr)
	}

	r.logger.Info("watching for changes", logfields.Path(r.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-force:
			r.rebuild(ctx, reason)
		case batch, ok := <-deb.Batches():
			if !ok {
				return nil
			}
			if !r.affectsSite(batch) {
				r.logger.Debug("change set cannot affect output, skipping rebuild",
					logfields.Count(len(batch)))
				continue
			}
			r.logger.Info("changes detected", logfields.Count(len(batch)))
			r.rebuild(ctx, "changes")
		}
	}
}

func (r *Runner) rebuild(ctx context.Context, reason string) {
	r.logger.Info("rebuilding", slog.String("reason", reason))
	res, err := r.builder.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("rebuild failed", logfields.Error(err))
		}
		return
	}
	r.prints = res.Fingerprints
	if len(res.Failures) > 0 {
		r.logger.Warn("rebuild finished with page failures", logfields.Count(len(res.Failures)))
	}
}

// affectsSite reports whether any path in the change set can influence the
// rendered output.
func (r *Runner) affectsSite(batch []string) bool {
	for _, p := range batch {
		if r.pathMatters(p) {
			return true
		}
	}
	return false
}

func (r *Runner) pathMatters(p string) bool {
	// Configuration feeds the build; changed settings need a restart to
	// fully apply, but the rebuild keeps output consistent with content.
	if p == config.DefaultFileName {
		return true
	}

	if rel, ok := pathUnder(p, r.contentPrefix); ok && content.IsMarkdown(rel) {
		last, known := r.prints[rel]
		if !known {
			return true
		}
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(p)))
		if err != nil {
			// Deleted or unreadable: rebuild so the page disappears.
			return true
		}
		return content.FileFingerprint(data) != last
	}

	// Anything the graph links to a page matters: templates, assets, and
	// non-markdown content files referenced by links.
	if len(r.builder.Graph().AllDependents(p)) > 0 {
		return true
	}

	// New files under the template and asset trees are not in the graph
	// yet but still change the output.
	if _, ok := pathUnder(p, r.templatesPrefix); ok {
		return true
	}
	if _, ok := pathUnder(p, r.assetsPrefix); ok {
		return true
	}
	return false
}

func pathUnder(p, prefix string) (string, bool) {
	if p == prefix {
		return "", true
	}
	rel, ok := strings.CutPrefix(p, prefix+"/")
	if !ok {
		return "", false
	}
	return rel, true
}

// skipPath filters watcher events: dotfiles, the state directory, and the
// output tree (our own writes would loop the watcher otherwise).
func (r *Runner) skipPath(rel string) bool {
	if strings.HasPrefix(path.Base(rel), ".") {
		return true
	}
	if rel == r.outPrefix || strings.HasPrefix(rel, r.outPrefix+"/") {
		return true
	}
	return false
}

func (r *Runner) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.metrics)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		r.logger.Info("metrics listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server failed", logfields.Error(err))
		}
	}()
}
