package util

import (
	"regexp"
	"strings"
)

var hexInputPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// SanitizeHex accepts a 6 digit hex colour with or without a leading '#'
// and returns it without the '#'.
func SanitizeHex(s string) (string, bool) {
	if !hexInputPattern.MatchString(s) {
		return "", false
	}
	return strings.TrimPrefix(s, "#"), true
}

// ExpandEscapedNewlines turns the two characters `\n` typed into a slash
// command option into real line breaks.
func ExpandEscapedNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
