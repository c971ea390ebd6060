package util

import (
	"regexp"
	"strings"
)

var phoneJunk = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone strips formatting characters (spaces, dashes, dots,
// parentheses) and rewrites an international "00" prefix to "+".
func NormalizePhone(raw string) string {
	s := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}

	// a "+" is only meaningful as the leading character
	if i := strings.LastIndex(s, "+"); i > 0 {
		s = s[:1] + strings.ReplaceAll(s[1:], "+", "")
	}

	return s
}
