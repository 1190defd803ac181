package dialog

import (
	"fmt"
	"sort"
)

// Category classifies a diagnostic raised while reading or checking a dialog.
type Category int

const (
	Info Category = iota
	DuplicateKey
	DuplicateConcept
	DuplicateSynonym
	IncorrectPattern
	InvalidReference
	NeverUsed
)

// Categories lists every category in report order.
var Categories = []Category{Info, DuplicateKey, DuplicateConcept, DuplicateSynonym, IncorrectPattern, InvalidReference, NeverUsed}

func (c Category) String() string {
	switch c {
	case Info:
		return "Info"
	case DuplicateKey:
		return "DuplicateKey"
	case DuplicateConcept:
		return "DuplicateConcept"
	case DuplicateSynonym:
		return "DuplicateSynonym"
	case IncorrectPattern:
		return "IncorrectPattern"
	case InvalidReference:
		return "InvalidReference"
	case NeverUsed:
		return "NeverUsed"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Diagnostic is a non-fatal finding attached to a line of the dialog document.
type Diagnostic struct {
	Line     int
	Category Category
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%05d;%s;%s", d.Line, d.Category, d.Message)
}

// Report records a diagnostic.
func (d *Dialog) Report(line int, category Category, format string, args ...any) {
	d.Diagnostics = append(d.Diagnostics, Diagnostic{
		Line:     line,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	})
}

// CountByCategory returns the number of diagnostics per category.
func (d *Dialog) CountByCategory() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, diag := range d.Diagnostics {
		counts[diag.Category]++
	}
	return counts
}

// SortedDiagnostics returns the rendered diagnostics in line order.
func (d *Dialog) SortedDiagnostics() []string {
	lines := make([]string, len(d.Diagnostics))
	for i, diag := range d.Diagnostics {
		lines[i] = diag.String()
	}
	sort.Strings(lines)
	return lines
}
