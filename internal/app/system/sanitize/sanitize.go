// internal/app/system/sanitize/sanitize.go
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag and attribute. Safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// maxPasses bounds how many layers of entity encoding FileName peels.
const maxPasses = 8

// FileName strips markup and control characters from a user-supplied file
// name and trims surrounding whitespace. The result may be empty.
//
// Names are stored as plain text, so entities are decoded, and every decode
// is sanitized again until the name stops changing. Markup hidden behind
// entity encoding never survives into the stored name.
func FileName(s string) string {
	if s == "" {
		return ""
	}
	out := s
	stable := false
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		if next == out {
			stable = true
			break
		}
		out = next
	}
	if !stable {
		// Still decoding into markup: keep it escaped.
		out = strict.Sanitize(out)
	}
	out = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, out)
	return strings.TrimSpace(out)
}
