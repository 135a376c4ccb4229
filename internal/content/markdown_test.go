package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown_ProducesHTML(t *testing.T) {
	out, err := RenderMarkdown([]byte("# Hi\n\nSome *text*.\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Hi</h1>")
	assert.Contains(t, out, "<em>text</em>")
}

func TestRenderMarkdown_KeepsRawHTML(t *testing.T) {
	out, err := RenderMarkdown([]byte("before\n\n<span class=\"badge\">beta</span>\n\nafter\n"))
	require.NoError(t, err)
	assert.Contains(t, out, `<span class="badge">beta</span>`)
}

func TestRenderMarkdown_GitHubFlavored(t *testing.T) {
	out, err := RenderMarkdown([]byte("| a | b |\n|---|---|\n| 1 | 2 |\n\n~~gone~~\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<del>gone</del>")
}

func TestExtractLinks_CoversLinkKinds(t *testing.T) {
	body := []byte(`[guide](./guide.md)

![diagram](./img/flow.png)

<https://example.com>

See [the ref][r].

[r]: ./referenced.md
`)

	links := ExtractLinks(body)

	byKind := map[LinkKind][]string{}
	for _, l := range links {
		byKind[l.Kind] = append(byKind[l.Kind], l.Destination)
	}

	assert.Contains(t, byKind[LinkKindInline], "./guide.md")
	assert.Contains(t, byKind[LinkKindInline], "./referenced.md", "reference uses resolve to links")
	assert.Contains(t, byKind[LinkKindImage], "./img/flow.png")
	assert.Contains(t, byKind[LinkKindAuto], "https://example.com")
	assert.Contains(t, byKind[LinkKindReferenceDefinition], "./referenced.md")
}

func TestExtractLinks_EmptyBody(t *testing.T) {
	assert.Empty(t, ExtractLinks(nil))
}

func TestFirstHeading_ReturnsLevelOneText(t *testing.T) {
	assert.Equal(t, "Getting Started", FirstHeading([]byte("intro\n\n# Getting *Started*\n\n## Later\n")))
}

func TestFirstHeading_NoLevelOne(t *testing.T) {
	assert.Empty(t, FirstHeading([]byte("## Only a subheading\n")))
	assert.Empty(t, FirstHeading(nil))
}
