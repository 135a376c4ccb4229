package content

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template/parse"

	"golang.org/x/net/html"
)

// DefaultLayoutName is the layout used when a page names none.
const DefaultLayoutName = "page.html"

// defaultLayout keeps a bare site buildable without a layouts directory.
const defaultLayout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}</title>
</head>
<body>
<nav>{{ .Sidebar }}</nav>
<main>{{ .Content }}</main>
</body>
</html>
`

// PageData is what layouts render against.
type PageData struct {
	Title   string
	URL     string
	Content template.HTML
	Sidebar template.HTML
	Site    map[string]any
	Params  map[string]any
}

// LayoutSet holds the parsed layout templates of a site, named by their
// path relative to the layouts directory ("page.html", "partials/nav.html").
type LayoutSet struct {
	root  *template.Template
	names []string
}

// LoadLayouts parses every .html file under dir into a single template set
// so layouts can include partials by relative name. A missing directory is
// not an error; the set then contains only the built-in default layout.
func LoadLayouts(dir string) (*LayoutSet, error) {
	root := template.New("")
	ls := &LayoutSet{root: root}

	if _, err := root.New(DefaultLayoutName).Parse(defaultLayout); err != nil {
		return nil, fmt.Errorf("parsing built-in layout: %w", err)
	}
	ls.names = append(ls.names, DefaultLayoutName)

	entries, err := layoutFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, rel := range entries {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("reading layout %s: %w", rel, err)
		}
		if _, err := root.New(rel).Parse(string(data)); err != nil {
			return nil, fmt.Errorf("parsing layout %s: %w", rel, err)
		}
		if rel != DefaultLayoutName {
			ls.names = append(ls.names, rel)
		}
	}
	return ls, nil
}

func layoutFiles(dir string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning layouts: %w", err)
	}
	sort.Strings(rels)
	return rels, nil
}

// Names lists the loaded layouts, built-in default first.
func (ls *LayoutSet) Names() []string {
	out := make([]string, len(ls.names))
	copy(out, ls.names)
	return out
}

// Has reports whether the set contains a layout by that name.
func (ls *LayoutSet) Has(name string) bool {
	return ls.root.Lookup(name) != nil
}

// Render executes the named layout against data.
func (ls *LayoutSet) Render(name string, data PageData) (string, error) {
	tpl := ls.root.Lookup(name)
	if tpl == nil {
		return "", fmt.Errorf("layout %q not found", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering layout %s: %w", name, err)
	}
	return buf.String(), nil
}

// Includes returns the names of templates the named layout references via
// {{template}} actions, in first-use order. These become dependency edges
// so editing a partial invalidates every page rendered through it.
func (ls *LayoutSet) Includes(name string) []string {
	tpl := ls.root.Lookup(name)
	if tpl == nil || tpl.Tree == nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	walkTemplateNodes(tpl.Tree.Root, func(tn *parse.TemplateNode) {
		if !seen[tn.Name] {
			seen[tn.Name] = true
			names = append(names, tn.Name)
		}
	})
	return names
}

func walkTemplateNodes(n parse.Node, fn func(*parse.TemplateNode)) {
	switch node := n.(type) {
	case *parse.ListNode:
		if node == nil {
			return
		}
		for _, c := range node.Nodes {
			walkTemplateNodes(c, fn)
		}
	case *parse.TemplateNode:
		fn(node)
	case *parse.IfNode:
		walkTemplateNodes(node.List, fn)
		walkTemplateNodes(node.ElseList, fn)
	case *parse.RangeNode:
		walkTemplateNodes(node.List, fn)
		walkTemplateNodes(node.ElseList, fn)
	case *parse.WithNode:
		walkTemplateNodes(node.List, fn)
		walkTemplateNodes(node.ElseList, fn)
	}
}

// AssetRefs extracts local asset references (img/script/source src, link
// href, video/audio src) from rendered HTML. External URLs and fragment
// links are skipped.
func AssetRefs(htmlSrc string) []string {
	doc, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return nil
	}

	var refs []string
	seen := map[string]bool{}
	add := func(ref string) {
		if ref == "" || strings.HasPrefix(ref, "#") {
			return
		}
		u, err := url.Parse(ref)
		if err != nil || u.Scheme != "" || u.Host != "" {
			return
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img", "script", "video", "audio", "source":
				add(attrValue(n, "src"))
			case "link":
				add(attrValue(n, "href"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
