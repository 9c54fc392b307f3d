// Package strings carries small text helpers shared by the CLI
// renderers.
package strings

import "strings"

// DefaultDescriptionMaxLen is the column width descriptions are
// truncated to in table output.
const DefaultDescriptionMaxLen = 60

// minTruncateLen leaves room for one character plus the ellipsis.
const minTruncateLen = 4

// TruncateDescription collapses a possibly multi-line description to a
// single line of at most maxLen runes, appending "..." when content was
// cut. Rune-based so multi-byte characters never split.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
