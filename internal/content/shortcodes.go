package content

import (
	"context"
	"strings"
)

// ShortcodeExecutor renders a named shortcode. ok is false when nothing
// registered the name or the renderer failed, in which case the original
// text stays in place.
type ShortcodeExecutor func(ctx context.Context, name string, attrs map[string]string, content string) (string, bool)

// ExpandShortcodes replaces {{< name key="value" >}} tags in src with the
// executor's output. Paired tags ({{< note >}}...{{< /note >}}) expand their
// inner text first and pass it as content; a tag with no matching closer
// renders with empty content. Tags inside fenced code blocks are left
// untouched so documentation can show shortcode syntax literally.
func ExpandShortcodes(ctx context.Context, src string, exec ShortcodeExecutor) string {
	fences := fencedSpans(src)

	var out strings.Builder
	pos := 0
	for {
		idx := nextTagStart(src, pos, fences)
		if idx < 0 {
			out.WriteString(src[pos:])
			break
		}
		out.WriteString(src[pos:idx])

		tag, ok := parseShortcodeTag(src, idx)
		if !ok || tag.closing {
			// Stray marker or orphaned closer, emit it literally.
			out.WriteString(src[idx : idx+3])
			pos = idx + 3
			continue
		}

		if tag.selfClosed {
			pos = emitShortcode(ctx, &out, exec, tag, "", src[idx:tag.end], tag.end)
			continue
		}

		closeStart, closeEnd := findClosingTag(src, tag.end, tag.name, fences)
		if closeStart < 0 {
			pos = emitShortcode(ctx, &out, exec, tag, "", src[idx:tag.end], tag.end)
			continue
		}

		inner := ExpandShortcodes(ctx, src[tag.end:closeStart], exec)
		pos = emitShortcode(ctx, &out, exec, tag, inner, src[idx:closeEnd], closeEnd)
	}
	return out.String()
}

func emitShortcode(ctx context.Context, out *strings.Builder, exec ShortcodeExecutor, tag shortcodeTag, content, literal string, next int) int {
	rendered, handled := exec(ctx, tag.name, tag.attrs, content)
	if handled {
		out.WriteString(rendered)
	} else {
		out.WriteString(literal)
	}
	return next
}

type shortcodeTag struct {
	name       string
	attrs      map[string]string
	selfClosed bool
	closing    bool
	end        int
}

// parseShortcodeTag parses a tag starting at the {{< marker. ok is false
// when the text is not a well-formed tag.
func parseShortcodeTag(src string, start int) (shortcodeTag, bool) {
	var tag shortcodeTag
	i := start + len("{{<")
	i = skipSpaces(src, i)

	if i < len(src) && src[i] == '/' {
		tag.closing = true
		i++
		i = skipSpaces(src, i)
	}

	nameStart := i
	for i < len(src) && isNameByte(src[i]) {
		i++
	}
	if i == nameStart {
		return tag, false
	}
	tag.name = src[nameStart:i]

	for {
		i = skipSpaces(src, i)
		if strings.HasPrefix(src[i:], ">}}") {
			tag.end = i + len(">}}")
			return tag, true
		}
		if strings.HasPrefix(src[i:], "/>}}") {
			tag.selfClosed = true
			tag.end = i + len("/>}}")
			return tag, true
		}
		if tag.closing {
			return tag, false
		}

		key, val, next, ok := parseAttr(src, i)
		if !ok {
			return tag, false
		}
		if tag.attrs == nil {
			tag.attrs = make(map[string]string)
		}
		tag.attrs[key] = val
		i = next
	}
}

func parseAttr(src string, i int) (key, val string, next int, ok bool) {
	keyStart := i
	for i < len(src) && isNameByte(src[i]) {
		i++
	}
	if i == keyStart || i >= len(src) || src[i] != '=' {
		return "", "", 0, false
	}
	key = src[keyStart:i]
	i++

	if i < len(src) && src[i] == '"' {
		i++
		valStart := i
		for i < len(src) && src[i] != '"' {
			if src[i] == '\n' {
				return "", "", 0, false
			}
			i++
		}
		if i >= len(src) {
			return "", "", 0, false
		}
		return key, src[valStart:i], i + 1, true
	}

	valStart := i
	for i < len(src) && !isSpaceByte(src[i]) && src[i] != '>' && src[i] != '/' {
		i++
	}
	if i == valStart {
		return "", "", 0, false
	}
	return key, src[valStart:i], i, true
}

// findClosingTag locates {{< /name >}} at or after from, skipping fenced
// regions. Nested same-name tags are not depth-counted; the nearest closer
// wins.
func findClosingTag(src string, from int, name string, fences []span) (start, end int) {
	pos := from
	for {
		idx := nextTagStart(src, pos, fences)
		if idx < 0 {
			return -1, -1
		}
		tag, ok := parseShortcodeTag(src, idx)
		if ok && tag.closing && tag.name == name {
			return idx, tag.end
		}
		pos = idx + 3
	}
}

func nextTagStart(src string, from int, fences []span) int {
	pos := from
	for {
		rel := strings.Index(src[pos:], "{{<")
		if rel < 0 {
			return -1
		}
		idx := pos + rel
		if sp, inside := spanContaining(fences, idx); inside {
			pos = sp.end
			continue
		}
		return idx
	}
}

type span struct{ start, end int }

func spanContaining(spans []span, idx int) (span, bool) {
	for _, sp := range spans {
		if idx >= sp.start && idx < sp.end {
			return sp, true
		}
	}
	return span{}, false
}

// fencedSpans returns the byte ranges covered by fenced code blocks
// (``` or ~~~). An unterminated fence runs to the end of input.
func fencedSpans(src string) []span {
	var spans []span
	inFence := false
	var marker string
	var fenceStart int

	offset := 0
	for _, line := range strings.SplitAfter(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inFence && (strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")):
			inFence = true
			marker = trimmed[:3]
			fenceStart = offset
		case inFence && strings.HasPrefix(trimmed, marker):
			inFence = false
			spans = append(spans, span{start: fenceStart, end: offset + len(line)})
		}
		offset += len(line)
	}
	if inFence {
		spans = append(spans, span{start: fenceStart, end: len(src)})
	}
	return spans
}

func skipSpaces(src string, i int) int {
	for i < len(src) && isSpaceByte(src[i]) {
		i++
	}
	return i
}

func isSpaceByte(b byte) bool { return b == ' ' || b == '\t' }

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}
