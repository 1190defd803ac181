package dialog

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordPattern finds whole-word occurrences of a set of alternatives, case
// insensitively, trying the longest alternatives first. Word boundaries are
// Unicode aware: "œuvre" is a word, "ur" does not match inside "cœur".
type WordPattern struct {
	re *regexp.Regexp
}

// compileAlternatives returns nil when there is nothing to match.
func compileAlternatives(alternatives []string) *WordPattern {
	if len(alternatives) == 0 {
		return nil
	}
	sorted := make([]string, len(alternatives))
	copy(sorted, alternatives)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len([]rune(sorted[i])) > len([]rune(sorted[j]))
	})
	quoted := make([]string, len(sorted))
	for i, s := range sorted {
		quoted[i] = regexp.QuoteMeta(s)
	}
	expr := `(?i)(?:^|[^\p{L}\p{N}\p{M}_])(` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}\p{M}_])`
	return &WordPattern{re: regexp.MustCompile(expr)}
}

// FindAllStringIndex returns the byte spans of every non-overlapping match in s.
func (p *WordPattern) FindAllStringIndex(s string) [][]int {
	var spans [][]int
	pos := 0
	for pos <= len(s) {
		loc := p.re.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[2], pos+loc[3]
		if pos > 0 && start == pos && isWordEnd(s[:pos]) {
			// "^" matched at a resumed offset glued to the previous word
			_, size := utf8.DecodeRuneInString(s[pos:])
			pos += max(size, 1)
			continue
		}
		spans = append(spans, []int{start, end})
		if end == pos {
			_, size := utf8.DecodeRuneInString(s[pos:])
			pos += max(size, 1)
			continue
		}
		// the trailing separator may open the next match
		pos = end
	}
	return spans
}

// FindString returns the leftmost match in s, or "".
func (p *WordPattern) FindString(s string) string {
	spans := p.FindAllStringIndex(s)
	if len(spans) == 0 {
		return ""
	}
	return s[spans[0][0]:spans[0][1]]
}

func isWordEnd(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}
