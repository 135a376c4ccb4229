package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitewright/internal/build"
	"git.home.luguber.info/inful/sitewright/internal/config"
	"git.home.luguber.info/inful/sitewright/internal/journal"
	"git.home.luguber.info/inful/sitewright/internal/logfields"
	"git.home.luguber.info/inful/sitewright/internal/metrics"
	pluginmgr "git.home.luguber.info/inful/sitewright/internal/plugin"
	"git.home.luguber.info/inful/sitewright/internal/plugin/builtin"
	"git.home.luguber.info/inful/sitewright/internal/state"
	"git.home.luguber.info/inful/sitewright/internal/version"
	"git.home.luguber.info/inful/sitewright/internal/watch"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"

	_ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/gitmeta"
	_ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/notify"
	_ "git.home.luguber.info/inful/sitewright/internal/plugin/builtin/searchindex"
)

var CLI struct {
	Config  string `short:"c" help:"Site configuration file path" default:"site.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Output string `short:"o" help:"Override the configured output directory"`
	} `cmd:"" help:"Build the site once"`

	Watch struct{} `cmd:"" help:"Build the site and rebuild on file changes"`

	Init struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Create a starter site in the current directory"`

	Plugins struct {
		List     struct{} `cmd:"" help:"List discovered plugins"`
		Validate struct{} `cmd:"" help:"Validate the configured plugin set without building"`
	} `cmd:"" help:"Inspect the plugin setup"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	// Bootstrap logger; replaced by the configured one once site.yaml loads.
	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	switch ctx.Command() {
	case "build":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		if CLI.Build.Output != "" {
			cfg.Output.Directory = CLI.Build.Output
		}
		if err := runBuild(cfg, projectRoot()); err != nil {
			slog.Error("Build failed", logfields.Error(err))
			os.Exit(1)
		}
	case "watch":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		if err := runWatch(cfg, projectRoot()); err != nil {
			slog.Error("Watch failed", logfields.Error(err))
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", logfields.Error(err))
			os.Exit(1)
		}
	case "plugins list":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		runPluginsList(cfg, projectRoot())
	case "plugins validate":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		if err := runPluginsValidate(cfg, projectRoot()); err != nil {
			slog.Error("Validation failed", logfields.Error(err))
			os.Exit(1)
		}
	case "version":
		fmt.Println(version.String())
	}
}

// projectRoot is the directory containing the configuration file; all
// relative site paths resolve against it.
func projectRoot() string {
	return filepath.Dir(CLI.Config)
}

// loadConfig reads site.yaml and swaps the bootstrap logger for the
// configured one. --verbose wins over the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}

	level := config.NormalizeLogLevel(cfg.Logging.Level).SlogLevel()
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if config.NormalizeLogFormat(cfg.Logging.Format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

// site bundles the wired components the build and watch commands share.
type site struct {
	manager *pluginmgr.Manager
	builder *build.Builder
	journal journal.Journal

	// metricsHandler is non-nil when watch.metrics_listen is configured.
	metricsHandler http.Handler
}

// wireSite assembles plugin discovery, loading, state, journal, and metrics
// into a ready Builder. Plugins are initialized before this returns, so a
// broken plugin set fails here rather than mid-build.
func wireSite(ctx context.Context, cfg *config.Config, root string) (*site, error) {
	logger := slog.Default()

	registry := discoverRegistry(cfg, root)
	loader := pluginmgr.NewLoader(pluginmgr.LoaderConfig{
		BuiltinManifests: builtin.Manifests(),
		BuiltinFactory:   builtin.Factory,
		PluginsDir:       resolvePluginsDir(cfg, root),
		ProjectRoot:      root,
		Logger:           logger,
	})

	store, err := state.NewJSONStore(cfg.StateDir(root))
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	var jnl journal.Journal = journal.Nop{}
	if cfg.Journal.Enabled {
		jnlPath := cfg.Journal.Path
		if !filepath.IsAbs(jnlPath) {
			jnlPath = filepath.Join(root, jnlPath)
		}
		sq, err := journal.OpenSQLite(jnlPath)
		if err != nil {
			return nil, fmt.Errorf("opening build journal: %w", err)
		}
		jnl = sq
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsHandler http.Handler
	if cfg.Watch.MetricsListen != "" {
		promReg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(promReg)
		metricsHandler = metrics.HTTPHandler(promReg)
	}

	manager := pluginmgr.NewManager(pluginmgr.ManagerConfig{
		Registry: registry,
		Loader:   loader,
		State:    store,
		Journal:  jnl,
		Metrics:  recorder,
		Logger:   logger,
		Context: &plugin.Context{
			Logger:    logger,
			Site:      cfg.Raw(),
			SiteDir:   root,
			OutputDir: filepath.Join(root, cfg.Output.Directory),
		},
	})

	if err := manager.Initialize(ctx, cfg.Plugins); err != nil {
		closeJournal(jnl)
		return nil, fmt.Errorf("initializing plugins: %w", err)
	}

	builder, err := build.NewBuilder(build.Options{
		Config:      cfg,
		ProjectRoot: root,
		Plugins:     manager,
		Journal:     jnl,
		Metrics:     recorder,
		Logger:      logger,
	})
	if err != nil {
		manager.Shutdown(ctx)
		closeJournal(jnl)
		return nil, err
	}

	return &site{
		manager:        manager,
		builder:        builder,
		journal:        jnl,
		metricsHandler: metricsHandler,
	}, nil
}

// close shuts plugins down and releases the journal, bounded so a stuck
// shutdown hook cannot wedge the process.
func (s *site) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.manager.Shutdown(ctx)
	closeJournal(s.journal)
}

func closeJournal(jnl journal.Journal) {
	if err := jnl.Close(); err != nil {
		slog.Warn("Failed to close journal", logfields.Error(err))
	}
}

// discoverRegistry scans builtin and on-disk plugin sources for the site.
func discoverRegistry(cfg *config.Config, root string) *pluginmgr.Registry {
	return pluginmgr.BuildRegistry(pluginmgr.DiscoveryConfig{
		BuiltinManifests: builtin.Manifests(),
		PluginsDir:       resolvePluginsDir(cfg, root),
		ProjectRoot:      root,
		Refs:             cfg.Plugins,
		Logger:           slog.Default(),
	})
}

func resolvePluginsDir(cfg *config.Config, root string) string {
	if filepath.IsAbs(cfg.PluginsDir) {
		return cfg.PluginsDir
	}
	return filepath.Join(root, cfg.PluginsDir)
}

func runBuild(cfg *config.Config, root string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	site, err := wireSite(ctx, cfg, root)
	if err != nil {
		return err
	}
	defer site.close()

	res, err := site.builder.Run(ctx)
	if err != nil {
		return err
	}

	for _, f := range res.Failures {
		slog.Warn("Page failed", logfields.Path(f.Path), logfields.Error(f.Err))
	}
	slog.Info("Site built",
		logfields.BuildID(res.BuildID),
		slog.Int("pages", res.Pages),
		slog.Int("assets", res.Assets),
		slog.Duration("duration", res.Duration),
		slog.String("output", res.OutputDir))

	if n := len(res.Failures); n > 0 {
		return fmt.Errorf("%d pages failed", n)
	}
	return nil
}

func runWatch(cfg *config.Config, root string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	site, err := wireSite(ctx, cfg, root)
	if err != nil {
		return err
	}
	defer site.close()

	runner, err := watch.NewRunner(watch.Options{
		Config:         cfg,
		ProjectRoot:    root,
		Builder:        site.builder,
		Logger:         slog.Default(),
		MetricsHandler: site.metricsHandler,
	})
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- runner.Run(ctx)
	}()

	slog.Info("Watching for changes", slog.String("root", root))

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping watcher")
	}

	// Let any in-flight rebuild finish before the process exits.
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(10 * time.Second):
		slog.Warn("Watcher did not stop within timeout")
	}
	return nil
}

func runInit(configPath string, force bool) error {
	if err := config.Init(configPath, force); err != nil {
		return err
	}

	root := filepath.Dir(configPath)
	for _, dir := range []string{"content", "templates", "assets"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}

	index := filepath.Join(root, "content", "index.md")
	if _, err := os.Stat(index); os.IsNotExist(err) {
		if err := os.WriteFile(index, []byte(starterPage), 0o644); err != nil {
			return fmt.Errorf("writing starter page: %w", err)
		}
	}

	slog.Info("Site initialized", slog.String("config", configPath))
	return nil
}

const starterPage = `---
title: Welcome
---

# Welcome

Edit content/index.md and run ` + "`sitewright build`" + ` to regenerate the site.
`

func runPluginsList(cfg *config.Config, root string) {
	registry := discoverRegistry(cfg, root)
	if registry.Len() == 0 {
		fmt.Println("no plugins discovered")
		return
	}

	enabled := make(map[string]bool, len(cfg.Plugins))
	for _, ref := range cfg.Plugins {
		enabled[ref.Name] = ref.Enabled
	}

	fmt.Printf("%-24s %-10s %-8s %s\n", "NAME", "VERSION", "SOURCE", "STATUS")
	for _, d := range registry.All() {
		status := "available"
		if on, listed := enabled[d.Key()]; listed {
			status = "enabled"
			if !on {
				status = "disabled"
			}
		}
		fmt.Printf("%-24s %-10s %-8s %s\n", d.Key(), d.Manifest.Version, d.Source, status)
		if d.Manifest.Description != "" {
			fmt.Printf("%-24s %s\n", "", d.Manifest.Description)
		}
		if len(d.Manifest.Provides) > 0 {
			fmt.Printf("%-24s provides: %s\n", "", strings.Join(d.Manifest.Provides, ", "))
		}
	}
}

func runPluginsValidate(cfg *config.Config, root string) error {
	names := cfg.PluginNames()
	if len(names) == 0 {
		fmt.Println("no plugins configured")
		return nil
	}

	registry := discoverRegistry(cfg, root)
	resolver := pluginmgr.NewResolver(registry, slog.Default())
	report := resolver.Validate(names)

	for _, w := range report.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, e := range report.Errors {
		fmt.Printf("error: %s\n", e)
	}
	if !report.Valid {
		return fmt.Errorf("%d validation errors", len(report.Errors))
	}
	fmt.Println("plugin configuration valid")
	return nil
}
