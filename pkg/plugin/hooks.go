package plugin

// Hook names fired by the build pipeline. The vocabulary is open: plugins
// may register handlers for names not listed here (the manager logs a
// warning but executes them), and new pipeline stages may add names.
const (
	// HookConfigLoaded fires once after site.yaml is loaded. Handlers
	// receive (site config, own resolved config, context) instead of the
	// usual threaded value.
	HookConfigLoaded = "config:loaded"

	HookBuildStart = "build:start"
	HookBuildEnd   = "build:end"
	HookBuildError = "build:error"

	HookThemeLoaded = "theme:loaded"

	// HookFilesDiscovered threads the discovered source file list.
	HookFilesDiscovered = "files:discovered"

	// Markdown hooks thread page source before and page AST metadata after
	// parsing.
	HookMarkdownBeforeParse = "markdown:before-parse"
	HookMarkdownAfterParse  = "markdown:after-parse"

	// Page hooks thread rendered HTML through each stage.
	HookPageBeforeRender = "page:before-render"
	HookPageAfterRender  = "page:after-render"
	HookPageBeforeWrite  = "page:before-write"
	HookPageAfterWrite   = "page:after-write"

	HookSidebarBeforeRender = "sidebar:before-render"
	HookSidebarAfterRender  = "sidebar:after-render"

	HookAssetsBeforeCopy = "assets:before-copy"
	HookAssetsAfterCopy  = "assets:after-copy"

	// Search hooks thread the index entry list.
	HookSearchBeforeIndex = "search:before-index"
	HookSearchAfterIndex  = "search:after-index"

	// HookShutdown fires once when the manager shuts down.
	HookShutdown = "shutdown"
)

// KnownHooks returns the hook names the pipeline fires, in pipeline order.
func KnownHooks() []string {
	return []string{
		HookConfigLoaded,
		HookBuildStart,
		HookThemeLoaded,
		HookFilesDiscovered,
		HookMarkdownBeforeParse,
		HookMarkdownAfterParse,
		HookPageBeforeRender,
		HookPageAfterRender,
		HookPageBeforeWrite,
		HookPageAfterWrite,
		HookSidebarBeforeRender,
		HookSidebarAfterRender,
		HookAssetsBeforeCopy,
		HookAssetsAfterCopy,
		HookSearchBeforeIndex,
		HookSearchAfterIndex,
		HookBuildEnd,
		HookBuildError,
		HookShutdown,
	}
}
