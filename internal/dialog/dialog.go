// Package dialog holds the in-memory model of a compiled dialog document: the
// node tree, the symbol tables for variables, constants, concepts and entities,
// and the diagnostics raised while building and checking them.
package dialog

import (
	"sort"
	"strings"

	"dialogtool/internal/mappinguri"
	"dialogtool/internal/textnorm"
)

// Dialog is the compiled dialog document. It is built once by the compiler and
// shared read-only afterwards.
type Dialog struct {
	FilePath string

	StartNodeID          string
	FatHeadAnswerNodeIDs []string
	LongTailAnswerNodeID string
	MappingConfig        *mappinguri.Config

	Variables   []*Variable
	Constants   []*Constant
	Concepts    []*Concept
	Entities    []*Entity
	Diagnostics []Diagnostic

	// ConceptsPattern matches every concept synonym, longest first.
	ConceptsPattern *WordPattern

	nodes           []*Node
	nodesByDialogID map[string]NodeID
	intents         []NodeID
	intentsByName   map[string]NodeID

	variablesByName  map[string]*Variable
	constantsByName  map[string]*Constant
	conceptsByKey    map[string]*Concept
	synonyms         map[string]*ConceptGroup
	synonymOrder     []string
	entitiesByName   map[string]*Entity
	variableEntities map[string]*Entity
	federationGroups []string
}

// New returns an empty dialog for the document at path.
func New(path string) *Dialog {
	return &Dialog{
		FilePath:         path,
		nodesByDialogID:  make(map[string]NodeID),
		intentsByName:    make(map[string]NodeID),
		variablesByName:  make(map[string]*Variable),
		constantsByName:  make(map[string]*Constant),
		conceptsByKey:    make(map[string]*Concept),
		synonyms:         make(map[string]*ConceptGroup),
		entitiesByName:   make(map[string]*Entity),
		variableEntities: make(map[string]*Entity),
	}
}

// =============================================================================
// Nodes
// =============================================================================

// NewNode allocates a node in the arena and appends it to its parent's children.
func (d *Dialog) NewNode(kind NodeKind, parent NodeID) *Node {
	n := &Node{ID: NodeID(len(d.nodes)), Kind: kind, Parent: parent}
	d.nodes = append(d.nodes, n)
	if parent != NoNode {
		p := d.nodes[parent]
		p.Children = append(p.Children, n.ID)
	}
	return n
}

// Node returns the node addressed by id, or nil.
func (d *Dialog) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(d.nodes) {
		return nil
	}
	return d.nodes[id]
}

// NodeCount returns the size of the arena.
func (d *Dialog) NodeCount() int {
	return len(d.nodes)
}

// RegisterNode records the document id of n. The first registration of an id wins.
func (d *Dialog) RegisterNode(n *Node, dialogNodeID string) {
	n.DialogNodeID = dialogNodeID
	if dialogNodeID == "" {
		return
	}
	if prev, ok := d.nodesByDialogID[dialogNodeID]; ok {
		d.Report(n.Line, DuplicateKey, "Two dialog nodes with the same id %s (first one line %d)", dialogNodeID, d.nodes[prev].Line)
		return
	}
	d.nodesByDialogID[dialogNodeID] = n.ID
}

// NodeByDialogID looks up a node by its document id.
func (d *Dialog) NodeByDialogID(id string) (*Node, bool) {
	nid, ok := d.nodesByDialogID[id]
	if !ok {
		return nil, false
	}
	return d.nodes[nid], true
}

// AddIntent registers an intent node. A duplicate intent name is reported and ignored.
func (d *Dialog) AddIntent(n *Node) bool {
	if prev, ok := d.intentsByName[n.Intent.Name]; ok {
		d.Report(n.Line, DuplicateKey, "Two intent matching nodes found for intent %s (first one line %d)", n.Intent.Name, d.nodes[prev].Line)
		return false
	}
	d.intentsByName[n.Intent.Name] = n.ID
	d.intents = append(d.intents, n.ID)
	return true
}

// Intent returns the intent node with exactly this name.
func (d *Dialog) Intent(name string) (*Node, bool) {
	id, ok := d.intentsByName[name]
	if !ok {
		return nil, false
	}
	return d.nodes[id], true
}

// IntentNodes returns the intent nodes in declaration order.
func (d *Dialog) IntentNodes() []*Node {
	out := make([]*Node, len(d.intents))
	for i, id := range d.intents {
		out[i] = d.nodes[id]
	}
	return out
}

// Walk visits every intent and its descendants depth first. Returning false from
// fn skips the children of the visited node.
func (d *Dialog) Walk(fn func(n *Node) bool) {
	for _, id := range d.intents {
		d.walk(id, fn)
	}
}

func (d *Dialog) walk(id NodeID, fn func(n *Node) bool) {
	n := d.nodes[id]
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		d.walk(c, fn)
	}
}

// Statistics counts the reachable nodes per kind.
func (d *Dialog) Statistics() map[NodeKind]int {
	stats := make(map[NodeKind]int, len(NodeKinds))
	d.Walk(func(n *Node) bool {
		stats[n.Kind]++
		return true
	})
	return stats
}

// =============================================================================
// Variables and constants
// =============================================================================

// AddVariable declares a variable. The first declaration of a name wins.
func (d *Dialog) AddVariable(v *Variable) {
	if prev, ok := d.variablesByName[v.Name]; ok {
		d.Report(v.Line, DuplicateKey, "Variable %s already declared line %d", v.Name, prev.Line)
		return
	}
	d.variablesByName[v.Name] = v
	d.Variables = append(d.Variables, v)
}

// Variable looks up a declared variable.
func (d *Dialog) Variable(name string) (*Variable, bool) {
	v, ok := d.variablesByName[name]
	return v, ok
}

// AddConstant declares a constant. The first declaration of a name wins.
func (d *Dialog) AddConstant(c *Constant) {
	if prev, ok := d.constantsByName[c.Name]; ok {
		d.Report(c.Line, DuplicateKey, "Constant %s already declared line %d", c.Name, prev.Line)
		return
	}
	d.constantsByName[c.Name] = c
	d.Constants = append(d.Constants, c)
}

// Constant looks up a declared constant.
func (d *Dialog) Constant(name string) (*Constant, bool) {
	c, ok := d.constantsByName[name]
	return c, ok
}

// LinkConstant records that n uses the constant name, referenced on line.
func (d *Dialog) LinkConstant(n *Node, line int, name string) (*Constant, bool) {
	c, ok := d.constantsByName[name]
	if !ok {
		d.Report(line, InvalidReference, "Prompt item references undefined constant name %s", name)
		return nil, false
	}
	c.ReferencedBy = append(c.ReferencedBy, n.ID)
	return c, true
}

func (d *Dialog) referenceVariable(n *Node, name string, kind ReferenceKind) bool {
	v, ok := d.variablesByName[name]
	if !ok {
		return false
	}
	v.References = append(v.References, VariableReference{Node: n.ID, Kind: kind})
	return true
}

// LinkAssignment records the variable references of an assignment. It reports
// and returns false when a variable is not declared.
func (d *Dialog) LinkAssignment(n *Node, a *Assignment) bool {
	if !d.referenceVariable(n, a.Variable, Write) {
		d.Report(n.Line, InvalidReference, "Variable assignment references undefined variable %s", a.Variable)
		return false
	}
	if a.Operator == CopyFromVariable && !d.referenceVariable(n, a.Value, Read) {
		d.Report(n.Line, InvalidReference, "Failed to resolve variable name in variable to variable value assignment : %s", a.Value)
		return false
	}
	return true
}

// LinkCondition records the references of a condition. When the variable is bound
// to entity e, an Equals value must name one of its values.
func (d *Dialog) LinkCondition(n *Node, c *Condition, e *Entity) {
	if !d.referenceVariable(n, c.Variable, Read) {
		d.Report(n.Line, InvalidReference, "Condition references undefined variable %s", c.Variable)
		return
	}
	if c.Operator != Equals || e == nil || c.Value == "" {
		return
	}
	if ev := e.ValueByName(c.Value); ev != nil {
		ev.ReferencedBy = append(ev.ReferencedBy, n.ID)
		return
	}
	msg := "Entity value name '" + c.Value + "' is not defined for entity " + e.Name
	if s := d.SuggestValueFromName(e, c.Value); s != nil {
		msg += " => did you mean " + s.Entity.Name + "='" + s.Name + "' ?"
	}
	d.Report(n.Line, InvalidReference, "%s", msg)
}

// LinkSwitch records that a switch node reads both variables of its entity match.
// A loop-once node copies the second variable into the first one.
func (d *Dialog) LinkSwitch(n *Node) {
	em := n.EntityMatch
	if n.Kind == KindSwitchLoopOnce {
		d.referenceVariable(n, em.Variable2, Read)
		d.referenceVariable(n, em.Variable1, Write)
		d.referenceVariable(n, em.Variable2, Write)
		return
	}
	d.referenceVariable(n, em.Variable1, Read)
	if em.Variable2 != "" {
		d.referenceVariable(n, em.Variable2, Read)
	}
}

// =============================================================================
// Concepts
// =============================================================================

// AddConcept registers a concept, merging it with an existing concept sharing its
// id or canonical value.
func (d *Dialog) AddConcept(c *Concept) {
	seen := make(map[string]bool, len(c.Synonyms))
	kept := c.Synonyms[:0]
	for i, syn := range c.Synonyms {
		k := textnorm.Key(syn)
		if k == "" {
			continue
		}
		if seen[k] {
			d.Report(c.Line+i+2, DuplicateSynonym, "Concept %s contains the synonym \"%s\" twice", c.Key(), syn)
			continue
		}
		seen[k] = true
		kept = append(kept, syn)
	}
	c.Synonyms = kept
	if len(c.Synonyms) == 0 {
		d.Report(c.Line, IncorrectPattern, "Concept without any synonym")
		return
	}
	c.CanonicalValue = c.Synonyms[0]

	var existing *Concept
	if c.ID != "" {
		existing = d.conceptsByKey[c.ID]
	}
	if existing == nil {
		existing = d.conceptsByKey[c.CanonicalValue]
	}

	target := c
	if existing != nil {
		for _, syn := range c.Synonyms {
			if !existing.hasSynonym(syn) {
				existing.Synonyms = append(existing.Synonyms, syn)
			}
		}
		c.Duplicate = true
		d.Report(c.Line, DuplicateConcept, "Concept %s was already declared line %d : synonyms merged", c.Key(), existing.Line)
		if existing.ID == "" && c.ID != "" {
			existing.ID = c.ID
			d.conceptsByKey[c.ID] = existing
		}
		target = existing
	} else {
		d.Concepts = append(d.Concepts, c)
		d.conceptsByKey[c.CanonicalValue] = c
		if c.ID != "" {
			d.conceptsByKey[c.ID] = c
		}
	}

	for _, syn := range c.Synonyms {
		k := textnorm.Key(syn)
		g, ok := d.synonyms[k]
		if !ok {
			g = &ConceptGroup{Synonym: syn}
			d.synonyms[k] = g
			d.synonymOrder = append(d.synonymOrder, k)
		}
		g.add(target)
	}
}

// Concept looks up a concept by id or canonical value.
func (d *Dialog) Concept(key string) (*Concept, bool) {
	c, ok := d.conceptsByKey[key]
	return c, ok
}

// ConceptGroup returns the concepts declaring synonym.
func (d *Dialog) ConceptGroup(synonym string) (*ConceptGroup, bool) {
	g, ok := d.synonyms[textnorm.Key(synonym)]
	return g, ok
}

// CompileConcepts builds the synonym pattern once every concept is added.
func (d *Dialog) CompileConcepts() {
	alternatives := make([]string, 0, len(d.synonymOrder))
	for _, k := range d.synonymOrder {
		alternatives = append(alternatives, d.synonyms[k].Synonym)
	}
	d.ConceptsPattern = compileAlternatives(alternatives)
}

// LinkEntityValueToConcept binds ev to its referenced concept, or to the concept
// carrying its canonical value.
func (d *Dialog) LinkEntityValueToConcept(ev *EntityValue) {
	var c *Concept
	if ev.ConceptRef != "" {
		c = d.conceptsByKey[ev.ConceptRef]
		if c == nil {
			d.Report(ev.Line, InvalidReference, "Entity value %s='%s' references undefined concept %s", ev.Entity.Name, ev.Name, ev.ConceptRef)
			return
		}
	} else {
		c = d.conceptsByKey[ev.CanonicalValue]
		if c == nil {
			if g, ok := d.synonyms[textnorm.Key(ev.CanonicalValue)]; ok {
				c = g.Unique()
			}
		}
	}
	if c == nil {
		return
	}
	ev.Concept = c
	c.EntityValues = append(c.EntityValues, ev)
}

// =============================================================================
// Entities
// =============================================================================

// AddEntity seals e and registers it. The first declaration of a name wins.
func (d *Dialog) AddEntity(e *Entity) {
	e.seal(d)
	if prev, ok := d.entitiesByName[e.Name]; ok {
		d.Report(e.Line, DuplicateKey, "Entity %s already declared line %d", e.Name, prev.Line)
		return
	}
	d.entitiesByName[e.Name] = e
	d.Entities = append(d.Entities, e)
}

// Entity looks up an entity by name.
func (d *Dialog) Entity(name string) (*Entity, bool) {
	e, ok := d.entitiesByName[name]
	return e, ok
}

// SealEntities runs the cross-entity checks and applies the federation allow-lists
// (entity name -> group -> value names).
func (d *Dialog) SealEntities(allowLists map[string]map[string][]string) {
	byText := make(map[string]*EntityValue)
	byConcept := make(map[*Concept]*EntityValue)
	for _, e := range d.Entities {
		for _, ev := range e.Values {
			if k := textnorm.Key(ev.CanonicalValue); k != "" {
				if first, ok := byText[k]; !ok {
					byText[k] = ev
				} else if first.Entity != e {
					d.Report(ev.Line, Info, "[Info - this isn't a problem] Entity values %s='%s' and %s='%s' share the same text \"%s\"",
						first.Entity.Name, first.Name, e.Name, ev.Name, ev.CanonicalValue)
				}
			}
			if ev.Concept == nil {
				continue
			}
			if first, ok := byConcept[ev.Concept]; !ok {
				byConcept[ev.Concept] = ev
			} else if first.Entity != e {
				d.Report(ev.Line, Info, "[Info - this isn't a problem] Entity values %s='%s' and %s='%s' are linked to the same concept \"%s\"",
					first.Entity.Name, first.Name, e.Name, ev.Name, ev.Concept.CanonicalValue)
			}
		}
	}

	groups := make(map[string]bool)
	entityNames := make([]string, 0, len(allowLists))
	for name := range allowLists {
		entityNames = append(entityNames, name)
	}
	sort.Strings(entityNames)
	for _, name := range entityNames {
		e, ok := d.entitiesByName[name]
		if !ok {
			d.Report(0, InvalidReference, "Federation allow-list references undefined entity %s", name)
			continue
		}
		e.AllowList = allowLists[name]
		groupNames := make([]string, 0, len(e.AllowList))
		for g := range e.AllowList {
			groupNames = append(groupNames, g)
		}
		sort.Strings(groupNames)
		for _, g := range groupNames {
			groups[g] = true
			for _, valueName := range e.AllowList[g] {
				ev := e.ValueByName(valueName)
				if ev == nil {
					d.Report(e.Line, InvalidReference, "Federation group %s references undefined value %s='%s'", g, e.Name, valueName)
					continue
				}
				ev.AllowedInFederationGroups = append(ev.AllowedInFederationGroups, g)
			}
		}
		for _, ev := range e.Values {
			if len(ev.AllowedInFederationGroups) == 0 {
				d.Report(ev.Line, Info, "Entity value %s='%s' is not available in any federation group", e.Name, ev.Name)
			}
		}
	}
	d.federationGroups = d.federationGroups[:0]
	for g := range groups {
		d.federationGroups = append(d.federationGroups, g)
	}
	sort.Strings(d.federationGroups)
}

// LinkEntityMatch binds the variables of em to its entity and records the references.
// Undeclared entities and variables are reported and left unbound.
func (d *Dialog) LinkEntityMatch(n *Node, em *EntityMatch) {
	e, ok := d.entitiesByName[em.EntityName]
	if !ok {
		d.Report(n.Line, InvalidReference, "Entity match references undefined entity %s", em.EntityName)
	} else {
		em.Entity = e
		e.ReferencedBy = append(e.ReferencedBy, n.ID)
	}
	for _, v := range []*string{&em.Variable1, &em.Variable2} {
		if *v == "" {
			continue
		}
		if !d.referenceVariable(n, *v, Write) {
			d.Report(n.Line, InvalidReference, "Entity match references undefined variable %s", *v)
			*v = ""
			continue
		}
		if e != nil {
			d.variableEntities[*v] = e
		}
	}
	if em.Variable1 == "" && em.Variable2 != "" {
		em.Variable1, em.Variable2 = em.Variable2, ""
	}
}

// EntityForVariable returns the entity whose matches are stored in variable.
func (d *Dialog) EntityForVariable(variable string) (*Entity, bool) {
	e, ok := d.variableEntities[variable]
	return e, ok
}

// Groups returns the known federation groups, sorted.
func (d *Dialog) Groups() []string {
	return d.federationGroups
}

// Allowed reports whether value, stored in variable, may be displayed to group.
func (d *Dialog) Allowed(group, variable, value string) bool {
	e, ok := d.variableEntities[variable]
	if !ok || e.AllowList == nil {
		return true
	}
	ev := e.ValueByName(value)
	if ev == nil {
		return true
	}
	for _, g := range ev.AllowedInFederationGroups {
		if g == group {
			return true
		}
	}
	return false
}

var _ mappinguri.Federation = (*Dialog)(nil)

// =============================================================================
// Suggestions
// =============================================================================

// SuggestValueFromName proposes the entity value a misspelled value name most
// likely refers to, looking into other entities as a last resort.
func (d *Dialog) SuggestValueFromName(e *Entity, name string) *EntityValue {
	if ev := suggestInEntity(e, name); ev != nil {
		return ev
	}
	for _, other := range d.Entities {
		if other == e {
			continue
		}
		if ev := other.ValueByName(name); ev != nil {
			return ev
		}
	}
	for _, other := range d.Entities {
		if other == e {
			continue
		}
		if ev := suggestInEntity(other, name); ev != nil {
			return ev
		}
	}
	return nil
}

func suggestInEntity(e *Entity, name string) *EntityValue {
	text := strings.ReplaceAll(name, "_", " ")
	if ev := e.ValueByText(text); ev != nil {
		return ev
	}
	lower := strings.ToLower(name)
	var best *EntityValue
	bestDistance := 3
	for _, ev := range e.Values {
		if dist := textnorm.Levenshtein(lower, strings.ToLower(ev.Name)); dist < bestDistance {
			best, bestDistance = ev, dist
		}
	}
	return best
}

// SuggestValueFromText proposes the entity value whose text or concept synonyms are
// closest to text, within an edit distance of 3.
func (d *Dialog) SuggestValueFromText(e *Entity, text string) *EntityValue {
	k := textnorm.Key(textnorm.RemoveDiacriticsAndNonAlphanumeric(text))
	var best *EntityValue
	bestDistance := 4
	consider := func(candidate string, ev *EntityValue) {
		if dist := textnorm.Levenshtein(k, candidate); dist < bestDistance {
			best, bestDistance = ev, dist
		}
	}
	for _, ev := range e.Values {
		consider(textnorm.Key(ev.CanonicalValue), ev)
		if ev.Concept == nil {
			continue
		}
		for _, syn := range ev.Concept.Synonyms {
			consider(textnorm.Key(syn), ev)
		}
	}
	return best
}

// =============================================================================
// Reference resolution
// =============================================================================

// ResolveAndCheckReferences resolves goto targets, reclassifies gotos jumping to
// the node visited right after them, then reports unused symbols.
func (d *Dialog) ResolveAndCheckReferences() {
	previous := NoNode
	for _, id := range d.intents {
		for _, child := range d.nodes[id].Children {
			previous = d.resolveGotos(child, previous)
		}
	}
	d.checkNeverUsed()
}

func (d *Dialog) resolveGotos(id, previous NodeID) NodeID {
	n := d.nodes[id]
	if previous != NoNode {
		if p := d.nodes[previous]; p.Kind == KindGoto && p.Goto.Target == id {
			p.Kind = KindGotoNext
		}
	}
	if n.Kind == KindGoto && n.Goto.TargetID != "" {
		if target, ok := d.nodesByDialogID[n.Goto.TargetID]; ok {
			n.Goto.Target = target
			t := d.nodes[target]
			t.ReferencedBy = append(t.ReferencedBy, n.ID)
		} else {
			d.Report(n.Line, InvalidReference, "Goto node with invalid node reference : \"%s\" (target node may be offline) => dead end", n.Goto.TargetID)
		}
	}
	previous = id
	for _, c := range n.Children {
		previous = d.resolveGotos(c, previous)
	}
	return previous
}

func (d *Dialog) checkNeverUsed() {
	for _, c := range d.Constants {
		if len(c.ReferencedBy) == 0 {
			d.Report(c.Line, NeverUsed, "Constant %s is never used", c.Name)
		}
	}
	for _, v := range d.Variables {
		if len(v.References) == 0 {
			d.Report(v.Line, NeverUsed, "Variable %s is never used", v.Name)
		}
	}
	for _, c := range d.Concepts {
		if !c.Duplicate && len(c.EntityValues) == 0 {
			d.Report(c.Line, NeverUsed, "Concept %s is not linked to any entity value", c.Key())
		}
	}
	for _, e := range d.Entities {
		for _, ev := range e.Values {
			if len(ev.ReferencedBy) == 0 {
				d.Report(ev.Line, NeverUsed, "Entity value %s='%s' is never used in dialog nodes", e.Name, ev.Name)
			}
		}
	}
}
