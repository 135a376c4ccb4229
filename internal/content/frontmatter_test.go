package content

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFrontmatter_NoBlock_ReturnsBodyOnly(t *testing.T) {
	input := []byte("# Title\n\nHello\n")

	fm, body, had, err := SplitFrontmatter(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplitFrontmatter_Block_SplitsFieldsAndBody(t *testing.T) {
	input := []byte("---\ntitle: Intro\n---\n# Title\n")

	fm, body, had, err := SplitFrontmatter(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Intro\n"), fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplitFrontmatter_CRLF_KeepsLineEndings(t *testing.T) {
	input := []byte("---\r\ntitle: Intro\r\n---\r\nBody\r\n")

	fm, body, had, err := SplitFrontmatter(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Intro\r\n"), fm)
	require.Equal(t, []byte("Body\r\n"), body)
}

func TestSplitFrontmatter_MissingCloser_ReturnsError(t *testing.T) {
	_, _, had, err := SplitFrontmatter([]byte("---\ntitle: Intro\n# Title\n"))
	require.Error(t, err)
	require.False(t, had)
	require.True(t, errors.Is(err, ErrMissingClosingDelimiter))
}

func TestSplitFrontmatter_EmptyBlock(t *testing.T) {
	fm, body, had, err := SplitFrontmatter([]byte("---\n---\nBody\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Empty(t, fm)
	require.Equal(t, []byte("Body\n"), body)
}

func TestParseFrontmatter_EmptyInput_YieldsEmptyMap(t *testing.T) {
	fields, err := ParseFrontmatter(nil)
	require.NoError(t, err)
	require.NotNil(t, fields)
	require.Empty(t, fields)
}

func TestParseFrontmatter_InvalidYAML_ReturnsError(t *testing.T) {
	_, err := ParseFrontmatter([]byte("title: [unclosed"))
	require.Error(t, err)
}

func TestEncodeFrontmatter_SortsKeys(t *testing.T) {
	out, err := EncodeFrontmatter(map[string]any{
		"zebra": 1,
		"alpha": "x",
		"mid":   true,
	})
	require.NoError(t, err)
	require.Equal(t, "alpha: x\nmid: true\nzebra: 1\n", string(out))
}

func TestEncodeFrontmatter_EmptyMap_EmptyOutput(t *testing.T) {
	out, err := EncodeFrontmatter(nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
