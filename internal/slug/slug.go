// Package slug builds URL-safe identifiers from (mostly Persian) titles.
package slug

import (
	"errors"
	"regexp"
	"strings"
)

const MaxLength = 100

// ErrEmptySlug is returned when a title has no characters that survive
// transliteration.
var ErrEmptySlug = errors.New("title yields an empty slug")

var (
	reInvalid = regexp.MustCompile(`[^a-z0-9-]`)
	reHyphens = regexp.MustCompile(`-+`)
)

var transliteration = map[rune]string{
	'ا': "a", 'آ': "a", 'ب': "b", 'پ': "p", 'ت': "t", 'ث': "s",
	'ج': "j", 'چ': "ch", 'ح': "h", 'خ': "kh", 'د': "d",
	'ذ': "z", 'ر': "r", 'ز': "z", 'ژ': "zh", 'س': "s",
	'ش': "sh", 'ص': "s", 'ض': "z", 'ط': "t", 'ظ': "z",
	'ع': "a", 'غ': "gh", 'ف': "f", 'ق': "gh", 'ک': "k",
	'گ': "g", 'ل': "l", 'م': "m", 'ن': "n", 'و': "v",
	'ه': "h", 'ی': "y", ' ': "-",

	'۰': "0", '۱': "1", '۲': "2", '۳': "3", '۴': "4",
	'۵': "5", '۶': "6", '۷': "7", '۸': "8", '۹': "9",
	'٠': "0", '١': "1", '٢': "2", '٣': "3", '٤': "4",
	'٥': "5", '٦': "6", '٧': "7", '٨': "8", '٩': "9",
}

// Generate returns a lowercase [a-z0-9-] slug of at most MaxLength
// characters, or ErrEmptySlug.
func Generate(title string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if latin, ok := transliteration[r]; ok {
			b.WriteString(latin)
			continue
		}
		b.WriteRune(r)
	}

	s := reInvalid.ReplaceAllString(b.String(), "")
	s = reHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	if s == "" {
		return "", ErrEmptySlug
	}
	return s, nil
}
