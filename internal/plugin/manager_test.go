package plugin

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitewright/internal/config"
	"git.home.luguber.info/inful/sitewright/internal/journal"
	"git.home.luguber.info/inful/sitewright/internal/metrics"
	"git.home.luguber.info/inful/sitewright/internal/state"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// cleanerPlugin is a fakePlugin whose Cleanup invocations are counted.
type cleanerPlugin struct {
	fakePlugin
	cleanups int
	fail     bool
}

func (c *cleanerPlugin) Cleanup(_ context.Context, _ *plugin.Context) error {
	c.cleanups++
	if c.fail {
		return fmt.Errorf("cleanup refused")
	}
	return nil
}

// countingRecorder tallies handler failures per hook for assertions.
type countingRecorder struct {
	failures map[string]int
	loaded   int
}

func (r *countingRecorder) ObserveHookDuration(string, time.Duration) {}
func (r *countingRecorder) ObserveBuildDuration(time.Duration)        {}
func (r *countingRecorder) IncHandlerFailure(hook, _ string) {
	if r.failures == nil {
		r.failures = map[string]int{}
	}
	r.failures[hook]++
}
func (r *countingRecorder) IncBuildOutcome(metrics.BuildOutcome) {}
func (r *countingRecorder) SetPluginsLoaded(n int)               { r.loaded = n }
func (r *countingRecorder) AddPagesBuilt(int)                    {}

type managerFixture struct {
	mgr    *Manager
	store  state.Store
	logbuf *bytes.Buffer
	rec    *countingRecorder
}

// managerFor assembles a manager whose loader serves impls as builtins, in
// the given registry order.
func managerFor(t *testing.T, impls []plugin.Plugin, mutate ...func(*ManagerConfig)) *managerFixture {
	t.Helper()

	byName := map[string]plugin.Plugin{}
	reg := NewRegistry()
	for _, impl := range impls {
		man := impl.Manifest()
		byName[man.Name] = impl
		require.NoError(t, reg.Add(Descriptor{Manifest: man, Source: SourceBuiltin}))
	}

	buf := &bytes.Buffer{}
	rec := &countingRecorder{}
	cfg := ManagerConfig{
		Registry: reg,
		Loader:   loaderFor(t, byName),
		State:    state.NewMemoryStore(),
		Metrics:  rec,
		Logger:   slog.New(slog.NewTextHandler(buf, nil)),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return &managerFixture{mgr: NewManager(cfg), store: cfg.State, logbuf: buf, rec: rec}
}

func enabledRefs(names ...string) []config.PluginRef {
	refs := make([]config.PluginRef, len(names))
	for i, n := range names {
		refs[i] = config.PluginRef{Name: n, Enabled: true}
	}
	return refs
}

func instanceNames(m *Manager) []string {
	var names []string
	for _, inst := range m.Instances() {
		names = append(names, inst.Name())
	}
	return names
}

func TestInitializeLoadsInResolvedOrder(t *testing.T) {
	a := &fakePlugin{man: manifest("a", nil, nil, nil)}
	b := &fakePlugin{man: manifest("b", []string{"a"}, nil, nil)}
	fx := managerFor(t, []plugin.Plugin{a, b})

	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("b")))
	assert.Equal(t, []string{"a", "b"}, instanceNames(fx.mgr), "dependency precedes dependent")
	assert.Equal(t, 2, fx.rec.loaded)
}

func TestInitializeIsIdempotent(t *testing.T) {
	fx := managerFor(t, []plugin.Plugin{&fakePlugin{man: manifest("a", nil, nil, nil)}})

	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	assert.Equal(t, []string{"a"}, instanceNames(fx.mgr))
	assert.Contains(t, fx.logbuf.String(), "already initialized")
}

func TestInitializeFailsOnUnresolvable(t *testing.T) {
	fx := managerFor(t, []plugin.Plugin{&fakePlugin{man: manifest("a", []string{"ghost-capability"}, nil, nil)}})

	err := fx.mgr.Initialize(t.Context(), enabledRefs("a"))
	require.Error(t, err)
	var capErr *CapabilityError
	assert.ErrorAs(t, err, &capErr)
}

func TestInitializeSkipsUserDisabledDependency(t *testing.T) {
	b := &fakePlugin{man: manifest("b", nil, nil, nil)}
	c := &fakePlugin{man: manifest("c", []string{"b"}, nil, nil)}
	fx := managerFor(t, []plugin.Plugin{b, c})

	refs := []config.PluginRef{
		{Name: "b", Enabled: false},
		{Name: "c", Enabled: true},
	}
	require.NoError(t, fx.mgr.Initialize(t.Context(), refs))

	assert.Equal(t, []string{"c"}, instanceNames(fx.mgr), "disabled dependency stays unregistered")
	assert.Contains(t, fx.logbuf.String(), "plugin disabled")
}

func TestInitializePersistsRequestedNames(t *testing.T) {
	a := &fakePlugin{man: manifest("a", nil, nil, nil)}
	fx := managerFor(t, []plugin.Plugin{a})

	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	st, err := fx.store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, st.LoadedPlugins)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestInitializeCleansUpDepartedPlugins(t *testing.T) {
	old := &cleanerPlugin{fakePlugin: fakePlugin{man: manifest("old", nil, nil, nil)}}
	keep := &fakePlugin{man: manifest("keep", nil, nil, nil)}
	fx := managerFor(t, []plugin.Plugin{old, keep})

	require.NoError(t, fx.store.Save(state.BuildState{LoadedPlugins: []string{"old", "keep"}}))

	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("keep")))

	assert.Equal(t, 1, old.cleanups, "departed plugin gets a cleanup pass")
	assert.Equal(t, []string{"keep"}, instanceNames(fx.mgr))
}

func TestInitializeCleanupFailuresAreNotFatal(t *testing.T) {
	old := &cleanerPlugin{fakePlugin: fakePlugin{man: manifest("old", nil, nil, nil)}, fail: true}
	fx := managerFor(t, []plugin.Plugin{old, &fakePlugin{man: manifest("keep", nil, nil, nil)}})

	require.NoError(t, fx.store.Save(state.BuildState{LoadedPlugins: []string{"old"}}))
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("keep")))

	assert.Equal(t, 1, old.cleanups)
	assert.Contains(t, fx.logbuf.String(), "cleanup failed")
}

func TestInitializeCleanupMissingPluginIsNotFatal(t *testing.T) {
	fx := managerFor(t, []plugin.Plugin{&fakePlugin{man: manifest("keep", nil, nil, nil)}})

	require.NoError(t, fx.store.Save(state.BuildState{LoadedPlugins: []string{"vanished"}}))
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("keep")))

	assert.Contains(t, fx.logbuf.String(), "could not load removed plugin")
}

func hookRecorder(calls *[]string, name string, ret any) plugin.HookFunc {
	return func(_ context.Context, _ *plugin.Context, _ any, _ ...any) (any, error) {
		*calls = append(*calls, name)
		return ret, nil
	}
}

func TestExecuteHookThreadsValue(t *testing.T) {
	a := &fakePlugin{
		man: manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookMarkdownBeforeParse: func(_ context.Context, _ *plugin.Context, value any, _ ...any) (any, error) {
				return value.(string) + "+a", nil
			},
		},
	}
	b := &fakePlugin{
		man: manifest("b", []string{"a"}, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookMarkdownBeforeParse: func(_ context.Context, _ *plugin.Context, value any, _ ...any) (any, error) {
				return value.(string) + "+b", nil
			},
		},
	}
	fx := managerFor(t, []plugin.Plugin{a, b})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("b")))

	out := fx.mgr.ExecuteHook(t.Context(), plugin.HookMarkdownBeforeParse, "src")
	assert.Equal(t, "src+a+b", out, "handlers run in load order, each seeing the previous value")
}

func TestExecuteHookNilReturnKeepsRunningValue(t *testing.T) {
	a := &fakePlugin{
		man: manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookFilesDiscovered: func(_ context.Context, _ *plugin.Context, _ any, _ ...any) (any, error) {
				return nil, nil
			},
		},
	}
	fx := managerFor(t, []plugin.Plugin{a})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	files := []string{"a.md"}
	out := fx.mgr.ExecuteHook(t.Context(), plugin.HookFilesDiscovered, files)
	assert.Equal(t, files, out)
}

func TestExecuteHookWithoutHandlersIsIdentity(t *testing.T) {
	fx := managerFor(t, []plugin.Plugin{&fakePlugin{man: manifest("a", nil, nil, nil)}})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	value := map[string]any{"k": "v"}
	out := fx.mgr.ExecuteHook(t.Context(), plugin.HookBuildStart, value)
	assert.Equal(t, value, out)
}

func TestExecuteHookUnrecognizedNameWarnsButRuns(t *testing.T) {
	var calls []string
	a := &fakePlugin{
		man:   manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{"custom:thing": hookRecorder(&calls, "a", nil)},
	}
	fx := managerFor(t, []plugin.Plugin{a})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	out := fx.mgr.ExecuteHook(t.Context(), "custom:thing", 42)
	assert.Equal(t, 42, out)
	assert.Equal(t, []string{"a"}, calls)
	assert.Contains(t, fx.logbuf.String(), "unrecognized hook")
}

func TestExecuteHookIsolatesFailures(t *testing.T) {
	failing := &fakePlugin{
		man: manifest("failing", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookPageAfterRender: func(_ context.Context, _ *plugin.Context, _ any, _ ...any) (any, error) {
				return nil, fmt.Errorf("handler exploded")
			},
		},
	}
	panicking := &fakePlugin{
		man: manifest("panicking", []string{"failing"}, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookPageAfterRender: func(_ context.Context, _ *plugin.Context, _ any, _ ...any) (any, error) {
				panic("handler lost it")
			},
		},
	}
	healthy := &fakePlugin{
		man: manifest("healthy", []string{"panicking"}, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookPageAfterRender: func(_ context.Context, _ *plugin.Context, value any, _ ...any) (any, error) {
				return value.(int) + 1, nil
			},
		},
	}

	jnl, err := journal.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = jnl.Close() }()

	fx := managerFor(t, []plugin.Plugin{failing, panicking, healthy}, func(cfg *ManagerConfig) {
		cfg.Journal = jnl
	})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("healthy")))
	fx.mgr.SetBuildID("bld-1")

	out := fx.mgr.ExecuteHook(t.Context(), plugin.HookPageAfterRender, 10)
	assert.Equal(t, 11, out, "chain continues past failing handlers")

	assert.Equal(t, 2, fx.rec.failures[plugin.HookPageAfterRender])
	log := fx.logbuf.String()
	assert.Contains(t, log, "failing")
	assert.Contains(t, log, "panicking")

	events, err := jnl.ByBuild(t.Context(), "bld-1")
	require.NoError(t, err)
	var failed []journal.Event
	for _, ev := range events {
		if ev.Type == journal.EventHandlerFailed {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 2)
	assert.Equal(t, "failing", failed[0].Plugin)
	assert.Equal(t, "panicking", failed[1].Plugin)
}

func TestExecuteHookConfigLoaded(t *testing.T) {
	type seen struct {
		value any
		args  []any
	}
	var got seen
	a := &fakePlugin{
		man: manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookConfigLoaded: func(_ context.Context, _ *plugin.Context, value any, args ...any) (any, error) {
				got = seen{value: value, args: args}
				return "ignored", nil
			},
		},
	}
	a.man.Config = map[string]any{"speed": "fast"}

	site := map[string]any{"title": "Docs"}
	fx := managerFor(t, []plugin.Plugin{a}, func(cfg *ManagerConfig) {
		cfg.Context = &plugin.Context{Site: site}
	})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	original := map[string]any{"untouched": true}
	out := fx.mgr.ExecuteHook(t.Context(), plugin.HookConfigLoaded, original)

	assert.Equal(t, original, out, "config:loaded never threads the value")
	assert.Equal(t, site, got.value, "handlers receive the raw site configuration")
	require.Len(t, got.args, 1)
	ownCfg, ok := got.args[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fast", ownCfg["speed"], "handlers receive their own resolved config")
}

func TestExecuteHookDefaultContextHeuristic(t *testing.T) {
	var gotArgs []any
	a := &fakePlugin{
		man: manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookMarkdownAfterParse: func(_ context.Context, _ *plugin.Context, value any, args ...any) (any, error) {
				gotArgs = args
				return value, nil
			},
		},
	}
	a.man.Config = map[string]any{"marker": "a-own"}
	fx := managerFor(t, []plugin.Plugin{a})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	fx.mgr.ExecuteHook(t.Context(), plugin.HookMarkdownAfterParse, "<p>hi</p>")
	require.Len(t, gotArgs, 1, "raw content with no args gets the plugin context")
	pc, ok := gotArgs[0].(*plugin.Context)
	require.True(t, ok)
	assert.Equal(t, "a-own", pc.Config["marker"], "injected context is the handler's own")

	fx.mgr.ExecuteHook(t.Context(), plugin.HookMarkdownAfterParse, "<p>hi</p>", "explicit")
	require.Len(t, gotArgs, 1)
	assert.Equal(t, "explicit", gotArgs[0], "explicit args pass through verbatim")

	fx.mgr.ExecuteHook(t.Context(), plugin.HookMarkdownAfterParse, 99)
	assert.Empty(t, gotArgs, "non-content values get no injected context")
}

func TestExecuteShortcode(t *testing.T) {
	a := &fakePlugin{
		man: manifest("a", nil, nil, nil),
		shortcodes: map[string]plugin.ShortcodeFunc{
			"note": func(_ context.Context, _ *plugin.Context, attrs map[string]string, content string) (string, error) {
				return "<aside>" + attrs["kind"] + ":" + content + "</aside>", nil
			},
			"boom": func(_ context.Context, _ *plugin.Context, _ map[string]string, _ string) (string, error) {
				return "", fmt.Errorf("no")
			},
			"panic": func(_ context.Context, _ *plugin.Context, _ map[string]string, _ string) (string, error) {
				panic("shortcode lost it")
			},
		},
	}
	fx := managerFor(t, []plugin.Plugin{a})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	out, ok := fx.mgr.ExecuteShortcode(t.Context(), "note", map[string]string{"kind": "warn"}, "careful")
	assert.True(t, ok)
	assert.Equal(t, "<aside>warn:careful</aside>", out)

	_, ok = fx.mgr.ExecuteShortcode(t.Context(), "unregistered", nil, "")
	assert.False(t, ok)

	_, ok = fx.mgr.ExecuteShortcode(t.Context(), "boom", nil, "")
	assert.False(t, ok, "handler errors fall back to literal rendering")

	_, ok = fx.mgr.ExecuteShortcode(t.Context(), "panic", nil, "")
	assert.False(t, ok, "handler panics fall back to literal rendering")
}

func TestShortcodeCollisionLastRegistrationWins(t *testing.T) {
	first := &fakePlugin{
		man: manifest("first", nil, nil, nil),
		shortcodes: map[string]plugin.ShortcodeFunc{
			"badge": func(_ context.Context, _ *plugin.Context, _ map[string]string, _ string) (string, error) {
				return "from-first", nil
			},
		},
	}
	second := &fakePlugin{
		man: manifest("second", []string{"first"}, nil, nil),
		shortcodes: map[string]plugin.ShortcodeFunc{
			"badge": func(_ context.Context, _ *plugin.Context, _ map[string]string, _ string) (string, error) {
				return "from-second", nil
			},
		},
	}
	fx := managerFor(t, []plugin.Plugin{first, second})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("second")))

	out, ok := fx.mgr.ExecuteShortcode(t.Context(), "badge", nil, "")
	assert.True(t, ok)
	assert.Equal(t, "from-second", out)
	assert.Contains(t, fx.logbuf.String(), "already registered")
}

func TestShutdownFiresHookAndClears(t *testing.T) {
	var calls []string
	a := &cleanerPlugin{fakePlugin: fakePlugin{
		man:   manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{plugin.HookShutdown: hookRecorder(&calls, "a-shutdown", nil)},
		shortcodes: map[string]plugin.ShortcodeFunc{
			"x": func(_ context.Context, _ *plugin.Context, _ map[string]string, _ string) (string, error) {
				return "x", nil
			},
		},
	}}
	fx := managerFor(t, []plugin.Plugin{a})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	fx.mgr.Shutdown(t.Context())

	assert.Equal(t, []string{"a-shutdown"}, calls)
	assert.Equal(t, 1, a.cleanups)
	assert.Empty(t, fx.mgr.Instances())
	_, ok := fx.mgr.ExecuteShortcode(t.Context(), "x", nil, "")
	assert.False(t, ok)

	// A fresh initialization is allowed after shutdown.
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))
	assert.Equal(t, []string{"a"}, instanceNames(fx.mgr))
}

func TestShutdownWithoutInitializeIsSafe(t *testing.T) {
	fx := managerFor(t, nil)
	fx.mgr.Shutdown(t.Context())
	assert.Empty(t, fx.mgr.Instances())
}

func TestSetBuildIDReachesPluginContexts(t *testing.T) {
	var seenID string
	a := &fakePlugin{
		man: manifest("a", nil, nil, nil),
		hooks: map[string]plugin.HookFunc{
			plugin.HookBuildStart: func(_ context.Context, pc *plugin.Context, value any, _ ...any) (any, error) {
				seenID = pc.BuildID
				return value, nil
			},
		},
	}
	fx := managerFor(t, []plugin.Plugin{a})
	require.NoError(t, fx.mgr.Initialize(t.Context(), enabledRefs("a")))

	fx.mgr.SetBuildID("bld-42")
	fx.mgr.ExecuteHook(t.Context(), plugin.HookBuildStart, nil)
	assert.Equal(t, "bld-42", seenID)
}
