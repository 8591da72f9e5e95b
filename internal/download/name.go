package download

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fallbackName is used when a chain name has no usable characters.
const fallbackName = "allergen"

// NormalizeChainName turns a chain name into a file-name stem.
// The name is NFKC normalized, separators and whitespace become "_",
// runs of "_" collapse, and ASCII letters are lower-cased. Non-ASCII
// letters are kept so Japanese names stay readable.
func NormalizeChainName(chain string) string {
	s := strings.TrimSpace(norm.NFKC.String(chain))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), strings.ContainsRune(`/\:*?"<>|._-`, r), unicode.IsControl(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			lastUnderscore = true
			continue
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		}
		b.WriteRune(r)
		lastUnderscore = false
	}

	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return fallbackName
	}
	return out
}
