package store

import "strings"

// NormalizeText trims the input and collapses internal runs of whitespace.
// Case is preserved.
func NormalizeText(in string) string {
	trimmed := strings.TrimSpace(in)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}
