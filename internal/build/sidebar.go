package build

import (
	"context"
	"html"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

// buildSidebar produces the navigation HTML injected into every layout.
// Plugins can reorder or filter the page list on sidebar:before-render and
// rewrite the final markup on sidebar:after-render.
func (b *Builder) buildSidebar(ctx context.Context, bs *buildState) string {
	pages := hookValue(bs.log, plugin.HookSidebarBeforeRender,
		b.plugins.ExecuteHook(ctx, plugin.HookSidebarBeforeRender, bs.pages), bs.pages)
	markup := renderSidebar(pages)
	return hookValue(bs.log, plugin.HookSidebarAfterRender,
		b.plugins.ExecuteHook(ctx, plugin.HookSidebarAfterRender, markup), markup)
}

// renderSidebar builds a flat nav list ordered by URL, independent of
// discovery order.
func renderSidebar(pages []*plugin.Page) string {
	ordered := make([]*plugin.Page, len(pages))
	copy(ordered, pages)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].URL < ordered[j].URL })

	var sb strings.Builder
	sb.WriteString("<nav class=\"sidebar\">\n<ul>\n")
	for _, p := range ordered {
		sb.WriteString("<li><a href=\"")
		sb.WriteString(html.EscapeString(p.URL))
		sb.WriteString("\">")
		sb.WriteString(html.EscapeString(p.Title))
		sb.WriteString("</a></li>\n")
	}
	sb.WriteString("</ul>\n</nav>")
	return sb.String()
}
