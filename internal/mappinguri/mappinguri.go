// Package mappinguri turns the variable state reached at a fat-head answer node
// into the mapping URIs used to look up answer content.
package mappinguri

import (
	"strings"
)

const (
	// IntentVariable holds the name of the classified intent.
	IntentVariable = "CLASSIFIER_CLASS_0"
	// FederationGroupVariable holds the audience group of the conversation.
	FederationGroupVariable = "federationGroup"
	// RedirectVariable is set to "yes" when the answer must be served by the long tail.
	RedirectVariable = "REDIRECT_LONG_TAIL"
)

// Segment is one "/name/value" part of a mapping URI.
type Segment struct {
	Name     string
	Variable string
}

// DeduceRule sets Target to Value when the inspected variable contains Contains.
type DeduceRule struct {
	Inspected string
	Contains  string
	Target    string
	Value     string
}

// Config describes the URI layout of one dialog family.
type Config struct {
	Name             string
	Segments         []Segment
	RedirectVariable string
	Deduce           []DeduceRule
}

// Insurance is the layout used by dialogs declaring a guarantee entity.
var Insurance = &Config{
	Name: "insurance",
	Segments: []Segment{
		{Name: "intent", Variable: IntentVariable},
		{Name: "subdomain_entity", Variable: "SubDomain_Var"},
		{Name: "object_entity", Variable: "Object_Var"},
		{Name: "event_entity", Variable: "Event_Var"},
		{Name: "person_entity", Variable: "Person_Var"},
		{Name: "product_entity", Variable: "Product_Var"},
		{Name: "guarantee_entity", Variable: "Guarantee_Var"},
	},
	RedirectVariable: RedirectVariable,
	Deduce: []DeduceRule{
		{Inspected: IntentVariable, Contains: "Housing_", Target: "SubDomain_Var", Value: "housing"},
		{Inspected: IntentVariable, Contains: "Auto_", Target: "SubDomain_Var", Value: "auto"},
	},
}

// Savings is the layout used by every other dialog.
var Savings = &Config{
	Name: "savings",
	Segments: []Segment{
		{Name: FederationGroupVariable, Variable: FederationGroupVariable},
		{Name: "intent", Variable: IntentVariable},
		{Name: "subdomain_entity", Variable: "SubDomain_Var"},
		{Name: "support_entity", Variable: "Support_Var"},
		{Name: "event_entity", Variable: "Event_Var"},
		{Name: "person_entity", Variable: "Person_Var"},
		{Name: "product_entity", Variable: "Product_Var"},
		{Name: "history_entity", Variable: "History_Var"},
	},
	RedirectVariable: RedirectVariable,
}

// GuaranteeEntity is the entity whose presence selects the Insurance layout.
const GuaranteeEntity = "GUARANTEE_ENTITY"

// Detect picks the layout for a dialog.
func Detect(hasGuaranteeEntity bool) *Config {
	if hasGuaranteeEntity {
		return Insurance
	}
	return Savings
}

// IsInsurance reports whether c is the insurance layout.
func (c *Config) IsInsurance() bool {
	return c != nil && c.Name == Insurance.Name
}

// EntityVariables lists the segment variables bound to entities, each followed by
// its "_2" variant.
func (c *Config) EntityVariables() []string {
	var vars []string
	for _, seg := range c.Segments {
		if seg.Variable == FederationGroupVariable || seg.Variable == IntentVariable {
			continue
		}
		vars = append(vars, seg.Variable, seg.Variable+"_2")
	}
	return vars
}

// Federation decides which entity values can be shown to an audience group.
type Federation interface {
	Groups() []string
	Allowed(group, variable, value string) bool
}

// StateStore is the multi-valued variable state read by Generate.
type StateStore interface {
	Values(name string) []string
	Set(name, value string)
}

func isYes(v string) bool {
	return strings.EqualFold(v, "yes")
}

// Generate enumerates every URI reachable from the multi-valued state s.
// The first segment varies fastest and segments without values are omitted.
// When the state asks for a long tail redirect, no URI is produced.
func Generate(s StateStore, cfg *Config, fed Federation) (uris []string, redirect bool) {
	if cfg.RedirectVariable != "" {
		if vals := s.Values(cfg.RedirectVariable); len(vals) == 1 && isYes(vals[0]) {
			return nil, true
		}
	}
	for _, rule := range cfg.Deduce {
		vals := s.Values(rule.Inspected)
		if len(vals) == 1 && strings.Contains(vals[0], rule.Contains) {
			s.Set(rule.Target, rule.Value)
		}
	}

	var cols []column
	for _, seg := range cfg.Segments {
		vals := s.Values(seg.Variable)
		if len(vals) == 0 && seg.Variable == FederationGroupVariable && fed != nil {
			vals = fed.Groups()
		}
		if len(vals) == 0 {
			continue
		}
		cols = append(cols, column{seg: seg, values: vals})
	}
	if len(cols) == 0 {
		return nil, false
	}

	total := 1
	for _, c := range cols {
		total *= len(c.values)
	}
	idx := make([]int, len(cols))
	for n := 0; n < total; n++ {
		rest := n
		for i, c := range cols {
			idx[i] = rest % len(c.values)
			rest /= len(c.values)
		}

		group := ""
		var sb strings.Builder
		for i, c := range cols {
			v := c.values[idx[i]]
			if c.seg.Variable == FederationGroupVariable {
				group = v
			}
			sb.WriteByte('/')
			sb.WriteString(c.seg.Name)
			sb.WriteByte('/')
			sb.WriteString(v)
		}
		if group != "" && fed != nil && !combinationAllowed(fed, group, cols, idx) {
			continue
		}
		uris = append(uris, sb.String())
	}
	return uris, false
}

type column struct {
	seg    Segment
	values []string
}

func combinationAllowed(fed Federation, group string, cols []column, idx []int) bool {
	for i, c := range cols {
		if c.seg.Variable == FederationGroupVariable {
			continue
		}
		if !fed.Allowed(group, c.seg.Variable, c.values[idx[i]]) {
			return false
		}
	}
	return true
}

// Compute builds the single URI matching the live variable values. Deduce rules
// write into values. unsupported reports a value hidden from the current audience group.
func Compute(values map[string]string, cfg *Config, fed Federation) (uri string, redirect, unsupported bool) {
	if cfg.RedirectVariable != "" && isYes(values[cfg.RedirectVariable]) {
		return "", true, false
	}
	for _, rule := range cfg.Deduce {
		if strings.Contains(values[rule.Inspected], rule.Contains) {
			values[rule.Target] = rule.Value
		}
	}

	group := values[FederationGroupVariable]
	var sb strings.Builder
	for _, seg := range cfg.Segments {
		v := values[seg.Variable]
		if v == "" {
			continue
		}
		if group != "" && fed != nil && seg.Variable != FederationGroupVariable && !fed.Allowed(group, seg.Variable, v) {
			unsupported = true
		}
		sb.WriteByte('/')
		sb.WriteString(seg.Name)
		sb.WriteByte('/')
		sb.WriteString(v)
	}
	return sb.String(), false, unsupported
}
