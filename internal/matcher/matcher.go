// Package matcher recognizes entity values in free text, after rewriting concept
// synonyms to their canonical form.
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"dialogtool/internal/dialog"
	"dialogtool/internal/textnorm"
)

// placeholderPattern finds the "{synonym|canonical1|canonical2}" forms written for
// ambiguous synonyms, so they are never rewritten twice.
var placeholderPattern = regexp.MustCompile(`\{[^{}|]*(?:\|[^{}|]*)+\}`)

// Substitution records one concept synonym rewritten in the text.
type Substitution struct {
	Synonym     string
	Replacement string
	Concepts    []*dialog.Concept
	Start       int
	// ValueOffsets are the byte offsets, in the rewritten text, where an entity
	// value produced by this substitution may start.
	ValueOffsets []int
}

func (s Substitution) String() string {
	keys := make([]string, len(s.Concepts))
	for i, c := range s.Concepts {
		keys[i] = "'" + c.Key() + "'"
	}
	return fmt.Sprintf("concept(s) %s : replaced \"%s\" with \"%s\"", strings.Join(keys, " "), s.Synonym, s.Replacement)
}

// ValueMatch is an entity value found in the text.
type ValueMatch struct {
	Value *dialog.EntityValue
	Text  string
	Start int
}

func (m ValueMatch) String() string {
	return fmt.Sprintf("entity '%s' : matched \"%s\" as '%s'", m.Value.Entity.Name, m.Text, m.Value.Name)
}

// Result is the outcome of matching a text against a set of entities.
type Result struct {
	Text             string
	NormalizedText   string
	TextWithConcepts string
	Substitutions    []Substitution
	Matches          []ValueMatch
}

// ValuesOf returns the matched values of e in text order.
func (r *Result) ValuesOf(e *dialog.Entity) []*dialog.EntityValue {
	var values []*dialog.EntityValue
	for _, m := range r.Matches {
		if m.Value.Entity == e {
			values = append(values, m.Value)
		}
	}
	return values
}

// ReplaceWithConcepts rewrites every concept synonym of text with its canonical
// form, or with a placeholder listing every candidate when the synonym is shared.
func ReplaceWithConcepts(d *dialog.Dialog, text string) (string, []Substitution) {
	if d.ConceptsPattern == nil {
		return text, nil
	}
	protected := placeholderPattern.FindAllStringIndex(text, -1)

	var (
		sb   strings.Builder
		subs []Substitution
		last int
	)
	for _, loc := range d.ConceptsPattern.FindAllStringIndex(text) {
		if insideAny(protected, loc) {
			continue
		}
		synonym := text[loc[0]:loc[1]]
		group, ok := d.ConceptGroup(synonym)
		if !ok || len(group.Concepts) == 0 {
			continue
		}

		var replacement string
		var offsets []int
		if c := group.Unique(); c != nil {
			replacement = c.CanonicalValue
			offsets = []int{0}
		} else if isCanonical(group, synonym) {
			// canonical forms are fixed points
			continue
		} else {
			var rb strings.Builder
			rb.WriteByte('{')
			offsets = append(offsets, rb.Len())
			rb.WriteString(synonym)
			for _, c := range group.Concepts {
				rb.WriteByte('|')
				offsets = append(offsets, rb.Len())
				rb.WriteString(c.CanonicalValue)
			}
			rb.WriteByte('}')
			replacement = rb.String()
		}
		if replacement == synonym {
			continue
		}

		sb.WriteString(text[last:loc[0]])
		start := sb.Len()
		sb.WriteString(replacement)
		last = loc[1]
		for i := range offsets {
			offsets[i] += start
		}
		subs = append(subs, Substitution{
			Synonym:      synonym,
			Replacement:  replacement,
			Concepts:     group.Concepts,
			Start:        start,
			ValueOffsets: offsets,
		})
	}
	if len(subs) == 0 {
		return text, nil
	}
	sb.WriteString(text[last:])
	return sb.String(), subs
}

func isCanonical(group *dialog.ConceptGroup, synonym string) bool {
	k := textnorm.Key(synonym)
	for _, c := range group.Concepts {
		if textnorm.Key(c.CanonicalValue) == k {
			return true
		}
	}
	return false
}

func insideAny(spans [][]int, loc []int) bool {
	for _, s := range spans {
		if loc[0] >= s[0] && loc[1] <= s[1] {
			return true
		}
	}
	return false
}

// Match finds the values of entities in text. Diacritics are ignored and concept
// synonyms are rewritten first. Matches are returned in text order.
func Match(d *dialog.Dialog, entities []*dialog.Entity, text string) *Result {
	res := &Result{Text: text, NormalizedText: textnorm.RemoveDiacritics(text)}
	res.TextWithConcepts, res.Substitutions = ReplaceWithConcepts(d, res.NormalizedText)

	for _, e := range entities {
		if e == nil || e.Pattern == nil {
			continue
		}
		used := make(map[int]bool)
		for _, loc := range e.Pattern.FindAllStringIndex(res.TextWithConcepts) {
			if si := substitutionAt(res.Substitutions, loc[0]); si >= 0 {
				if used[si] {
					continue
				}
				used[si] = true
			}
			matched := res.TextWithConcepts[loc[0]:loc[1]]
			ev := e.ValueByText(matched)
			if ev == nil {
				continue
			}
			res.Matches = append(res.Matches, ValueMatch{Value: ev, Text: matched, Start: loc[0]})
		}
	}
	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Start < res.Matches[j].Start
	})
	return res
}

func substitutionAt(subs []Substitution, offset int) int {
	for i, s := range subs {
		for _, o := range s.ValueOffsets {
			if o == offset {
				return i
			}
		}
	}
	return -1
}
