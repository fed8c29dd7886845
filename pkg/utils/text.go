// Package utils provides shared utilities for text and logging.
package utils

// Truncate returns s truncated to maxRunes characters, with "..." appended if
// truncated. Counting runes keeps multibyte content intact. If maxRunes is 0
// or negative, returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
