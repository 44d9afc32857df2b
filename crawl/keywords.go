package crawl

import (
	"strings"
	"unicode"
)

const maxKeywords = 5

// Keywords derives search terms from a channel username: '@' stripped,
// lower-cased and split on '_', '-' and whitespace.
func Keywords(username string) []string {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})

	seen := make(map[string]bool, len(parts))
	keywords := make([]string, 0, maxKeywords)
	for _, p := range parts {
		if seen[p] {
			continue
		}
		seen[p] = true
		keywords = append(keywords, p)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
