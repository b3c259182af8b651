// Package strings provides small text-formatting helpers for the CLI's
// table output.
package strings

import (
	"strings"
)

const DefaultDescriptionMaxLen = 60
const MinTruncateLen = 4

// TruncateDescription collapses s's whitespace onto one line and clips it to
// maxLen runes, appending "..." when it had to cut. maxLen below
// MinTruncateLen is clamped, since there'd be no room left for content once
// "..." is subtracted.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
