package content

import (
	"strings"

	"github.com/inful/mdfp"
)

// Fields excluded from hashing: the fingerprint itself plus lastmod, which
// build plugins rewrite without the content having changed.
var fingerprintExcluded = map[string]bool{
	mdfp.FingerprintField: true,
	"lastmod":             true,
}

// Fingerprint computes the canonical content fingerprint for a page from its
// frontmatter fields and markdown body. Two pages with the same fields and
// body always fingerprint identically regardless of field order.
func Fingerprint(fields map[string]any, body []byte) (string, error) {
	forHash := make(map[string]any, len(fields))
	for k, v := range fields {
		if fingerprintExcluded[k] {
			continue
		}
		forHash[k] = v
	}

	fm := ""
	if len(forHash) > 0 {
		encoded, err := EncodeFrontmatter(forHash)
		if err != nil {
			return "", err
		}
		fm = strings.TrimSuffix(string(encoded), "\n")
	}

	return mdfp.CalculateFingerprintFromParts(fm, string(body)), nil
}

// FileFingerprint fingerprints a raw markdown document, frontmatter included.
// Files whose frontmatter does not parse hash the raw bytes instead, so a
// broken document still gets a stable identity.
func FileFingerprint(src []byte) string {
	fm, body, _, err := SplitFrontmatter(src)
	if err != nil {
		return mdfp.CalculateFingerprintFromParts("", string(src))
	}
	fields, err := ParseFrontmatter(fm)
	if err != nil {
		return mdfp.CalculateFingerprintFromParts("", string(src))
	}
	fp, err := Fingerprint(fields, body)
	if err != nil {
		return mdfp.CalculateFingerprintFromParts("", string(src))
	}
	return fp
}
