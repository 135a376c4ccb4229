package content

import (
	"maps"
	"testing"

	"github.com/inful/mdfp"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableForEqualInput(t *testing.T) {
	fields := map[string]any{"title": "Intro", "weight": 3}
	body := []byte("# Intro\n\nHello.\n")

	fp1, err := Fingerprint(fields, body)
	require.NoError(t, err)
	fp2, err := Fingerprint(maps.Clone(fields), body)
	require.NoError(t, err)

	require.NotEmpty(t, fp1)
	require.Equal(t, fp1, fp2)
}

func TestFingerprint_ChangesWithBody(t *testing.T) {
	fields := map[string]any{"title": "Intro"}

	fp1, err := Fingerprint(fields, []byte("one"))
	require.NoError(t, err)
	fp2, err := Fingerprint(fields, []byte("two"))
	require.NoError(t, err)

	require.NotEqual(t, fp1, fp2)
}

func TestFingerprint_IgnoresRewrittenFields(t *testing.T) {
	body := []byte("body")
	base := map[string]any{"title": "Intro"}

	fp1, err := Fingerprint(base, body)
	require.NoError(t, err)

	churned := map[string]any{
		"title":             "Intro",
		"lastmod":           "2026-01-01",
		mdfp.FingerprintField: "stale-value",
	}
	fp2, err := Fingerprint(churned, body)
	require.NoError(t, err)

	require.Equal(t, fp1, fp2, "lastmod and fingerprint churn must not move the hash")
}

func TestFileFingerprint_WholeDocument(t *testing.T) {
	doc := []byte("---\ntitle: Intro\n---\n# Intro\n")

	fp1 := FileFingerprint(doc)
	fp2 := FileFingerprint(doc)
	require.NotEmpty(t, fp1)
	require.Equal(t, fp1, fp2)

	edited := []byte("---\ntitle: Intro\n---\n# Intro edited\n")
	require.NotEqual(t, fp1, FileFingerprint(edited))
}

func TestFileFingerprint_BrokenFrontmatterStillHashes(t *testing.T) {
	broken := []byte("---\ntitle: [unclosed\n---\nBody\n")

	fp := FileFingerprint(broken)
	require.NotEmpty(t, fp)
	require.Equal(t, fp, FileFingerprint(broken))
}
