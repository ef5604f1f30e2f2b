package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.StrictPolicy()

// SanitizeString trims whitespace and strips null bytes.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeTag cleans a free-text wave tag. Markup is dropped and entities the policy
// escapes are decoded again so the stored tag is plain text.
func SanitizeTag(input string) string {
	return SanitizeString(html.UnescapeString(SanitizeHTML(SanitizeString(input))))
}
