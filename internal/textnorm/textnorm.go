// Package textnorm cleans scraped text: Unicode normalisation, Persian letter
// unification, removal of characters outside the Persian/Arabic script blocks
// and basic ASCII, and whitespace collapsing.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reTags       = regexp.MustCompile(`<[^>]+>`)
	reDisallowed = regexp.MustCompile(
		`[^\x{0600}-\x{06FF}\x{0750}-\x{077F}\x{08A0}-\x{08FF}\x{FB50}-\x{FDFF}\x{FE70}-\x{FEFF}a-zA-Z0-9\s.,!?;:()\-]`)
)

// Arabic code points that Persian pages mix in for the same letters.
var letterVariants = map[rune]rune{
	'ي': 'ی',
	'ى': 'ی',
	'ك': 'ک',
	'ۀ': 'ه',
}

func unifyLetters(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	if v, ok := letterVariants[r]; ok {
		return v
	}
	return r
}

// Clean returns text with unified letters, disallowed characters removed and
// whitespace collapsed to single spaces.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(norm.NFC, runes.Map(unifyLetters))
	if out, _, err := transform.String(t, text); err == nil {
		text = out
	}
	text = reWhitespace.ReplaceAllString(text, " ")
	text = reDisallowed.ReplaceAllString(text, "")
	text = reWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// CollapseWhitespace trims text and replaces whitespace runs with one space.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

// StripTags removes anything that looks like a markup tag.
func StripTags(text string) string {
	return reTags.ReplaceAllString(text, "")
}

// Len counts characters, not bytes.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate returns the first n characters of text and whether anything was cut.
func Truncate(text string, n int) (string, bool) {
	if n < 0 {
		n = 0
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos], true
		}
		i++
	}
	return text, false
}
