// Package charcount computes the platform display length of a post text.
package charcount

import (
	"regexp"
	"unicode/utf8"
)

// Every URL counts as a fixed number of characters regardless of its real
// length, matching the platform's t.co-style wrapping.
const URLWeight = 23

var urlRe = regexp.MustCompile(`https?://\S+`)

// Count returns the display length of text: each http(s) URL contributes
// URLWeight, the rest is counted by Unicode code point, so a multi-byte
// character still counts as 1. Empty text counts as 0.
func Count(text string) int {
	if text == "" {
		return 0
	}

	urls := len(urlRe.FindAllStringIndex(text, -1))
	rest := urlRe.ReplaceAllString(text, "")

	return utf8.RuneCountInString(rest) + urls*URLWeight
}
