// Package content holds the file-level building blocks of the pipeline:
// frontmatter handling, markdown parsing, shortcode expansion, layout
// rendering, slugs and content fingerprints.
package content

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates a document opened a frontmatter block
// without closing it.
var ErrMissingClosingDelimiter = errors.New("frontmatter start delimiter found but closing delimiter is missing")

// SplitFrontmatter separates a `---` delimited YAML frontmatter block from
// the markdown body. If the document does not start with a delimiter, had is
// false and body is the full input. CRLF documents keep their line endings.
func SplitFrontmatter(src []byte) (fm []byte, body []byte, had bool, err error) {
	nl := detectNewline(src)

	open := []byte("---" + nl)
	if !bytes.HasPrefix(src, open) {
		return nil, src, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(src[start:], open) {
		return []byte{}, src[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(src[start:], closeSeq)
	if idx < 0 {
		return nil, nil, false, ErrMissingClosingDelimiter
	}

	fmEnd := start + idx + len(nl)
	bodyStart := start + idx + len(closeSeq)
	return src[start:fmEnd], src[bodyStart:], true, nil
}

// ParseFrontmatter decodes raw YAML frontmatter (without delimiters) into a
// map. Empty input yields an empty, non-nil map.
func ParseFrontmatter(fm []byte) (map[string]any, error) {
	if len(fm) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := yaml.Unmarshal(fm, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// EncodeFrontmatter serializes a frontmatter map to YAML without delimiters.
// The yaml encoder sorts map keys, so equal maps always encode to equal
// bytes; fingerprinting depends on that.
func EncodeFrontmatter(fields map[string]any) ([]byte, error) {
	if len(fields) == 0 {
		return []byte{}, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fields); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func detectNewline(src []byte) string {
	for i := 0; i+1 < len(src); i++ {
		if src[i] == '\r' && src[i+1] == '\n' {
			return "\r\n"
		}
		if src[i] == '\n' {
			return "\n"
		}
	}
	return "\n"
}
