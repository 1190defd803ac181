package dialog

import "dialogtool/internal/textnorm"

// Concept is a set of synonyms sharing one canonical form (the first synonym).
type Concept struct {
	ID             string
	Line           int
	Synonyms       []string
	CanonicalValue string
	Duplicate      bool
	EntityValues   []*EntityValue
}

// Key is the dictionary key of the concept: its id when set, else its canonical value.
func (c *Concept) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.CanonicalValue
}

func (c *Concept) hasSynonym(s string) bool {
	k := textnorm.Key(s)
	for _, syn := range c.Synonyms {
		if textnorm.Key(syn) == k {
			return true
		}
	}
	return false
}

// ConceptGroup gathers the concepts sharing one synonym.
type ConceptGroup struct {
	Synonym  string
	Concepts []*Concept
}

func (g *ConceptGroup) add(c *Concept) {
	for _, existing := range g.Concepts {
		if existing == c {
			return
		}
	}
	g.Concepts = append(g.Concepts, c)
}

// Unique returns the single concept of the group, or nil when the synonym is ambiguous.
func (g *ConceptGroup) Unique() *Concept {
	if len(g.Concepts) == 1 {
		return g.Concepts[0]
	}
	return nil
}

// Entity is a named set of values that can be recognized in user text.
type Entity struct {
	Name         string
	Line         int
	Values       []*EntityValue
	ReferencedBy []NodeID

	// AllowList maps a federation group to the value names it may display.
	// Nil means the entity is not restricted.
	AllowList map[string][]string

	Pattern *WordPattern

	byName             map[string]*EntityValue
	byCanonical        map[string]*EntityValue
	byConceptCanonical map[string]*EntityValue
	byConceptSynonym   map[string]*EntityValue
}

// EntityValue is one value of an entity.
type EntityValue struct {
	Entity         *Entity
	Name           string
	CanonicalValue string
	Line           int
	ConceptRef     string
	Concept        *Concept
	ReferencedBy   []NodeID

	AllowedInFederationGroups []string
}

// NewEntity creates an empty entity.
func NewEntity(name string, line int) *Entity {
	return &Entity{Name: name, Line: line}
}

// AddValue appends a value; the canonical text is normalized.
func (e *Entity) AddValue(name, text string, line int, conceptRef string) *EntityValue {
	ev := &EntityValue{
		Entity:         e,
		Name:           name,
		CanonicalValue: textnorm.RemoveDiacriticsAndNonAlphanumeric(text),
		Line:           line,
		ConceptRef:     conceptRef,
	}
	e.Values = append(e.Values, ev)
	return ev
}

// ValueByName looks up a value by its case-insensitive name.
func (e *Entity) ValueByName(name string) *EntityValue {
	return e.byName[textnorm.Key(name)]
}

// ValueByText resolves a matched text through canonical values, then concept forms.
func (e *Entity) ValueByText(text string) *EntityValue {
	k := textnorm.Key(text)
	if ev, ok := e.byCanonical[k]; ok {
		return ev
	}
	if ev, ok := e.byConceptCanonical[k]; ok {
		return ev
	}
	return e.byConceptSynonym[k]
}

// seal builds the lookup dictionaries and the recognition pattern.
func (e *Entity) seal(d *Dialog) {
	e.byName = make(map[string]*EntityValue, len(e.Values))
	e.byCanonical = make(map[string]*EntityValue, len(e.Values))
	e.byConceptCanonical = make(map[string]*EntityValue)
	e.byConceptSynonym = make(map[string]*EntityValue)

	var alternatives []string
	seenAlt := make(map[string]bool)
	addAlt := func(s string) {
		k := textnorm.Key(s)
		if k == "" || seenAlt[k] {
			return
		}
		seenAlt[k] = true
		alternatives = append(alternatives, s)
	}

	for _, ev := range e.Values {
		nk := textnorm.Key(ev.Name)
		if prev, ok := e.byName[nk]; ok {
			d.Report(ev.Line, DuplicateKey, "Entity %s : value name '%s' already declared line %d", e.Name, ev.Name, prev.Line)
		} else {
			e.byName[nk] = ev
		}

		ck := textnorm.Key(ev.CanonicalValue)
		if ck != "" {
			if prev, ok := e.byCanonical[ck]; ok && prev != ev {
				d.Report(ev.Line, DuplicateKey, "Entity %s : values '%s' and '%s' share the same text \"%s\"", e.Name, prev.Name, ev.Name, ev.CanonicalValue)
			} else {
				e.byCanonical[ck] = ev
			}
			addAlt(ev.CanonicalValue)
		}

		if ev.Concept == nil {
			continue
		}
		cck := textnorm.Key(ev.Concept.CanonicalValue)
		if prev, ok := e.byConceptCanonical[cck]; ok && prev != ev {
			d.Report(ev.Line, DuplicateKey, "Entity %s : values '%s' and '%s' are linked to the same concept \"%s\"", e.Name, prev.Name, ev.Name, ev.Concept.CanonicalValue)
		} else {
			e.byConceptCanonical[cck] = ev
		}
		addAlt(ev.Concept.CanonicalValue)
		for _, syn := range ev.Concept.Synonyms {
			sk := textnorm.Key(syn)
			prev, ok := e.byConceptSynonym[sk]
			if !ok {
				e.byConceptSynonym[sk] = ev
				continue
			}
			if prev != ev && prev.Concept != ev.Concept {
				d.Report(ev.Line, DuplicateKey, "Entity %s : values '%s' and '%s' share the concept synonym \"%s\"", e.Name, prev.Name, ev.Name, syn)
			}
		}
	}

	e.Pattern = compileAlternatives(alternatives)
}
