// Package report writes the result files of the command line tools. Files are
// ';' separated lines encoded in ISO-8859-1.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"dialogtool/internal/batch"
	"dialogtool/internal/dialog"
	"dialogtool/internal/interpreter"
)

// InternalTestVariables are the variables filled by the TESTS intent.
var InternalTestVariables = []string{"Test_Var", "Test_Var_2", "Test2_Var", "Test2_Var_2"}

type lineWriter struct {
	w   *bufio.Writer
	err error
}

func newLineWriter(w io.Writer) *lineWriter {
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	return &lineWriter{w: bufio.NewWriter(enc.Writer(w))}
}

func (lw *lineWriter) line(fields ...string) {
	if lw.err != nil {
		return
	}
	_, lw.err = lw.w.WriteString(strings.Join(fields, ";") + "\r\n")
}

func (lw *lineWriter) flush() error {
	if lw.err != nil {
		return fmt.Errorf("failed to write report: %w", lw.err)
	}
	if err := lw.w.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteErrors writes the diagnostics of d sorted by line.
func WriteErrors(w io.Writer, d *dialog.Dialog) error {
	lw := newLineWriter(w)
	for _, diag := range d.SortedDiagnostics() {
		lw.line(diag)
	}
	return lw.flush()
}

// WriteAnswers writes every distinct mapping URI of the dialog in tree order, with
// the line of the first answer node producing it. It returns the number of URIs.
func WriteAnswers(w io.Writer, d *dialog.Dialog) (int, error) {
	lw := newLineWriter(w)
	seen := make(map[string]bool)
	d.Walk(func(n *dialog.Node) bool {
		if n.Kind != dialog.KindFatHeadAnswers {
			return true
		}
		for _, uri := range n.Goto.MappingURIs {
			if seen[uri] {
				continue
			}
			seen[uri] = true
			lw.line(strconv.Itoa(n.Line), uri)
		}
		return false
	})
	return len(seen), lw.flush()
}

// WriteCompare writes one line per impacted question: id, text, new path, old path.
func WriteCompare(w io.Writer, impacts []batch.Impact) error {
	lw := newLineWriter(w)
	for _, impact := range impacts {
		lw.line(impact.Question.ID, impact.Question.Text, impact.New.String(), impact.Old.String())
	}
	return lw.flush()
}

// WriteDebug writes the replay of a question set: id, text, intent, final node,
// full path and interpretation messages.
func WriteDebug(w io.Writer, results []*interpreter.ExecutionResult) error {
	lw := newLineWriter(w)
	lw.line("#id", "question", "intent", "result", "path", "messages")
	for _, res := range results {
		final := ""
		if f := res.Final(); f != nil {
			final = f.String()
		}
		question := res.QuestionText
		if res.Option != nil {
			question += " => " + res.Option.Text
		}
		lw.line(res.QuestionID, question, res.IntentName, final, res.String(), strings.Join(res.Messages, " | "))
	}
	return lw.flush()
}

// WriteInternalTest writes the entity values matched for each sample question of
// the TESTS intent.
func WriteInternalTest(w io.Writer, results []*interpreter.ExecutionResult) error {
	lw := newLineWriter(w)
	lw.line(append([]string{"#num", "question"}, InternalTestVariables...)...)
	for _, res := range results {
		fields := []string{res.QuestionID, res.QuestionText}
		for _, v := range InternalTestVariables {
			fields = append(fields, res.Values[v])
		}
		lw.line(fields...)
	}
	return lw.flush()
}

// WriteCheckSummary prints the metrics and diagnostic counts of a dialog.
func WriteCheckSummary(w io.Writer, d *dialog.Dialog) error {
	stats := d.Statistics()
	counts := d.CountByCategory()

	values := 0
	for _, e := range d.Entities {
		values += len(e.Values)
	}
	synonyms := 0
	for _, c := range d.Concepts {
		synonyms += len(c.Synonyms)
	}

	var sb strings.Builder
	sb.WriteString("Dialog file metrics :\n")
	for _, kind := range dialog.NodeKinds {
		if stats[kind] > 0 {
			fmt.Fprintf(&sb, "- %d %s nodes\n", stats[kind], kind)
		}
	}
	fmt.Fprintf(&sb, "- %d entity values\n", values)
	fmt.Fprintf(&sb, "- %d concepts\n", len(d.Concepts))
	fmt.Fprintf(&sb, "- %d concepts synonyms\n\n", synonyms)

	fmt.Fprintf(&sb, "%d inconsistencies found :\n", len(d.Diagnostics))
	labels := []struct {
		category dialog.Category
		label    string
	}{
		{dialog.InvalidReference, "invalid references"},
		{dialog.IncorrectPattern, "incorrect patterns"},
		{dialog.DuplicateKey, "duplicate keys"},
		{dialog.DuplicateConcept, "duplicate concepts"},
		{dialog.DuplicateSynonym, "duplicate synonyms"},
		{dialog.NeverUsed, "elements never used"},
		{dialog.Info, "infos"},
	}
	for _, l := range labels {
		fmt.Fprintf(&sb, "- %d %s\n", counts[l.category], l.label)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
