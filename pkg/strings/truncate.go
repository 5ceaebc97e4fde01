// Package strings holds text helpers shared by the CLI output and the
// registry error messages.
package strings

import (
	"strings"
)

// DescriptionMaxLen is the width server descriptions are cut to in tables.
const DescriptionMaxLen = 100

// ErrorBodyMaxLen bounds how much of an HTTP error body is echoed.
const ErrorBodyMaxLen = 200

// minLen leaves room for one rune plus the ellipsis.
const minLen = 4

// Truncate collapses all whitespace in s to single spaces and cuts the
// result to maxLen runes, ending in "..." when shortened.
func Truncate(s string, maxLen int) string {
	if maxLen < minLen {
		maxLen = minLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
