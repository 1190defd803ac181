// Package textnorm provides the text normalization helpers shared by the dialog
// compiler, the matcher and the classifier front end.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics decomposes s, drops the combining marks and recomposes the result.
func RemoveDiacritics(s string) string {
	if s == "" {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// RemoveDiacriticsAndNonAlphanumeric strips diacritics and replaces every run of
// characters that are neither letters nor digits with a single space.
// Case is preserved and the result is trimmed.
func RemoveDiacriticsAndNonAlphanumeric(s string) string {
	s = RemoveDiacritics(s)
	var sb strings.Builder
	sb.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false
			sb.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return sb.String()
}

// Key returns the normalized lookup key used by every case-insensitive dictionary.
func Key(s string) string {
	return strings.ToLower(RemoveDiacritics(s))
}

// Levenshtein computes the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

var frenchDigits = [10]string{"zero ", "un ", "deux ", "trois ", "quatre ", "cinq ", "six ", "sept ", "huit ", "neuf "}

// PreprocessSentence prepares a user sentence for the intent classifier:
// letters are lowercased, digits are spelled out in French, sentence
// punctuation splits lines and any other character becomes a single space.
func PreprocessSentence(sentence string) string {
	rs := []rune(sentence)
	last := len(rs) - 1
	var sb strings.Builder
	previousNonSpace := false
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r):
			sb.WriteRune(unicode.ToLower(r))
			previousNonSpace = true
		case r >= '0' && r <= '9':
			sb.WriteString(frenchDigits[r-'0'])
			previousNonSpace = false
		case unicode.IsDigit(r):
			previousNonSpace = false
		case r == '.' || r == '?' || r == '!':
			if i == last {
				continue
			}
			next := rs[i+1]
			if unicode.IsLetter(next) || unicode.IsDigit(next) {
				sb.WriteRune(r)
			} else {
				sb.WriteByte('\n')
			}
			previousNonSpace = false
		case r == '\n':
			sb.WriteByte('\n')
			previousNonSpace = false
		default:
			if previousNonSpace && i < last {
				sb.WriteByte(' ')
				previousNonSpace = false
			}
		}
	}
	return sb.String()
}
