// Package utils holds small helpers shared by the service binaries: logging and text cleanup.
package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// Truncate returns s cut to at most maxLen runes with "..." appended when cut.
// A maxLen of 0 or less returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// CollapseSpace trims s and replaces every run of whitespace with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sanitize cleans user input before it is embedded: markup tags and control
// characters are removed and whitespace is collapsed.
func Sanitize(s string) string {
	s = markupPattern.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return CollapseSpace(s)
}
