// Package simulator tracks the set of values each dialog variable may hold along
// one branch of the dialog tree, while the compiler walks it.
package simulator

import (
	"slices"

	"dialogtool/internal/dialog"
	"dialogtool/internal/mappinguri"
)

// Simulator is the static, multi-valued variable state of one branch.
// Clone it before exploring a sub-branch.
type Simulator struct {
	values            map[string][]string
	explicit          map[string]bool
	entityVariables   map[string]bool
	lastEntityMatches []*dialog.EntityMatch
}

// New returns a state seeded with the declared initial values of d.
// Seeded values are not considered explicitly set.
func New(d *dialog.Dialog) *Simulator {
	s := &Simulator{
		values:          make(map[string][]string),
		explicit:        make(map[string]bool),
		entityVariables: make(map[string]bool),
	}
	for _, v := range d.Variables {
		if v.InitValue != "" {
			s.values[v.Name] = []string{v.InitValue}
		}
	}
	if d.MappingConfig != nil {
		for _, name := range d.MappingConfig.EntityVariables() {
			s.entityVariables[name] = true
		}
	}
	return s
}

var _ mappinguri.StateStore = (*Simulator)(nil)

// Values returns the possible values of a variable.
func (s *Simulator) Values(name string) []string {
	return s.values[name]
}

// Value returns the value of a variable when it holds exactly one.
func (s *Simulator) Value(name string) (string, bool) {
	vals := s.values[name]
	if len(vals) != 1 {
		return "", false
	}
	return vals[0], true
}

// Set gives a variable a single explicit value.
func (s *Simulator) Set(name, value string) {
	s.values[name] = []string{value}
	s.explicit[name] = true
}

// ApplyConditions narrows the state to the branch where g holds. Equals conditions
// on one variable joined by OR keep every alternative.
func (s *Simulator) ApplyConditions(g *dialog.ConditionGroup) bool {
	var order []string
	byVariable := make(map[string][]string)
	for _, c := range g.Conditions {
		if c.Operator != dialog.Equals {
			continue
		}
		if _, ok := byVariable[c.Variable]; !ok {
			order = append(order, c.Variable)
		}
		if !slices.Contains(byVariable[c.Variable], c.Value) {
			byVariable[c.Variable] = append(byVariable[c.Variable], c.Value)
		}
	}

	changed := false
	for _, name := range order {
		vals := byVariable[name]
		if g.Operator == dialog.And || len(vals) == 1 {
			vals = vals[:1]
		}
		if !slices.Equal(s.values[name], vals) {
			changed = true
		}
		s.values[name] = slices.Clone(vals)
		s.explicit[name] = true
	}
	return changed
}

// Assign applies a, performed by a node of the given kind. It returns false when
// the assignment is suppressed: answer and redirect nodes reset entity variables
// themselves, so their blanking assignments on those variables are ignored.
func (s *Simulator) Assign(a *dialog.Assignment, kind dialog.NodeKind) bool {
	if a.Operator == dialog.SetToBlank && s.entityVariables[a.Variable] &&
		(kind == dialog.KindFatHeadAnswers || kind == dialog.KindRedirectToLongTail) {
		return false
	}
	switch a.Operator {
	case dialog.SetToBlank:
		delete(s.values, a.Variable)
	case dialog.CopyFromVariable:
		if src := s.values[a.Value]; len(src) > 0 {
			s.values[a.Variable] = slices.Clone(src)
		} else {
			delete(s.values, a.Variable)
		}
	default:
		s.values[a.Variable] = []string{a.Value}
	}
	s.explicit[a.Variable] = true
	return true
}

// EnterIntent records the intent name and the entity matches of the intent node.
func (s *Simulator) EnterIntent(n *dialog.Node) {
	s.Set(mappinguri.IntentVariable, n.Intent.Name)
	s.lastEntityMatches = n.Intent.EntityMatches
}

// EnterQuestion makes the entity match of a disambiguation question the current one.
func (s *Simulator) EnterQuestion(n *dialog.Node) {
	if n.Question.EntityMatch == nil {
		s.lastEntityMatches = nil
		return
	}
	s.lastEntityMatches = []*dialog.EntityMatch{n.Question.EntityMatch}
}

// LastEntityMatches returns the entity matches of the last intent or question entered.
func (s *Simulator) LastEntityMatches() []*dialog.EntityMatch {
	return s.lastEntityMatches
}

// EntityFromVariable returns the entity whose value the last entity matches store
// in variable.
func (s *Simulator) EntityFromVariable(variable string) *dialog.Entity {
	for _, em := range s.lastEntityMatches {
		if em == nil {
			continue
		}
		if em.Variable1 == variable || (em.Variable2 != "" && em.Variable2 == variable) {
			return em.Entity
		}
	}
	return nil
}

// Clone returns an independent copy of the state. The entity matches are shared.
func (s *Simulator) Clone() *Simulator {
	c := &Simulator{
		values:            make(map[string][]string, len(s.values)),
		explicit:          make(map[string]bool, len(s.explicit)),
		entityVariables:   s.entityVariables,
		lastEntityMatches: s.lastEntityMatches,
	}
	for k, v := range s.values {
		c.values[k] = slices.Clone(v)
	}
	for k, v := range s.explicit {
		c.explicit[k] = v
	}
	return c
}

// ResetEntityVariablesNotExplicitlySet drops the seeded values of the given entity
// variables and returns the ones no node of the branch has set.
func (s *Simulator) ResetEntityVariablesNotExplicitlySet(variables []string) []string {
	var reset []string
	for _, name := range variables {
		if s.explicit[name] {
			continue
		}
		delete(s.values, name)
		reset = append(reset, name)
	}
	return reset
}
