package view

import (
	"strings"
	"unicode"
)

const maxNameLen = 24

// SanitizeText makes inbound message content safe to print. Content is plain
// text and is shown as sent; only control characters other than newline and
// tab are dropped so escape sequences from peers cannot reach the terminal.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}
	return stripControl(s, true)
}

// SanitizeName is SanitizeText for single-line labels, capped in length.
func SanitizeName(s string) string {
	s = strings.TrimSpace(stripControl(s, false))
	if r := []rune(s); len(r) > maxNameLen {
		s = string(r[:maxNameLen])
	}
	if s == "" {
		return "anon"
	}
	return s
}

func stripControl(s string, multiline bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsControl(r) {
			if multiline && (r == '\n' || r == '\t') {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
