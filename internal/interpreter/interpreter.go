// Package interpreter executes a compiled dialog for one user turn and records
// the path it took through the node tree.
package interpreter

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"dialogtool/internal/dialog"
	"dialogtool/internal/mappinguri"
	"dialogtool/internal/matcher"
)

// maxVisits bounds one turn when gotos form a cycle.
const maxVisits = 1000

// NodeExecution is one visited node. Match is set on the node that read the user
// input, MappingURI on a fat head answer that produced one. A fat head answer
// that redirects to the long tail, or whose values are not supported, has no
// MappingURI and keeps its FatHeadAnswers kind: the visit is not relabeled
// RedirectToLongTail.
type NodeExecution struct {
	Node       *dialog.Node
	Match      *matcher.Result
	MappingURI string
}

func (e NodeExecution) String() string {
	if e.MappingURI != "" {
		return "FatHeadAnswer:" + e.MappingURI
	}
	var sb strings.Builder
	sb.WriteString(e.Node.String())
	if e.Match != nil {
		for _, s := range e.Match.Substitutions {
			sb.WriteString(" > ")
			sb.WriteString(s.String())
		}
		for _, m := range e.Match.Matches {
			sb.WriteString(" > ")
			sb.WriteString(m.String())
		}
	}
	return sb.String()
}

// ExecutionResult is the outcome of one turn.
type ExecutionResult struct {
	QuestionID   string
	QuestionText string
	IntentName   string

	// Option is the disambiguation option replayed, if any.
	Option *dialog.DisambiguationOption

	Path     []NodeExecution
	Values   map[string]string
	Messages []string
}

func newResult(id, text, intent string) *ExecutionResult {
	return &ExecutionResult{QuestionID: id, QuestionText: text, IntentName: intent, Values: make(map[string]string)}
}

func (r *ExecutionResult) logf(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Final returns the last node visited, or nil when the path is empty.
func (r *ExecutionResult) Final() *NodeExecution {
	if len(r.Path) == 0 {
		return nil
	}
	return &r.Path[len(r.Path)-1]
}

// PendingQuestion returns the disambiguation question the turn stopped on.
func (r *ExecutionResult) PendingQuestion() *dialog.Node {
	if f := r.Final(); f != nil && f.Node.Kind == dialog.KindDisambiguationQuestion {
		return f.Node
	}
	return nil
}

// String renders the path as "[node] >> [node]".
func (r *ExecutionResult) String() string {
	parts := make([]string, len(r.Path))
	for i, e := range r.Path {
		parts[i] = "[" + e.String() + "]"
	}
	return strings.Join(parts, " >> ")
}

// ReturnsSameResultAs compares the last node visited by both turns.
func (r *ExecutionResult) ReturnsSameResultAs(old *ExecutionResult) bool {
	mine, theirs := r.Final(), old.Final()
	if mine == nil || theirs == nil {
		return mine == nil && theirs == nil
	}
	return mine.String() == theirs.String()
}

// FindIntent resolves an intent by exact name, then by name suffix.
func FindIntent(d *dialog.Dialog, name string) (*dialog.Node, bool) {
	if n, ok := d.Intent(name); ok {
		return n, true
	}
	if name == "" {
		return nil, false
	}
	for _, n := range d.IntentNodes() {
		if strings.HasSuffix(n.Intent.Name, name) {
			return n, true
		}
	}
	return nil, false
}

// AnalyzeInitialQuestion runs the first turn of a conversation from the intent
// predicted for text.
func AnalyzeInitialQuestion(d *dialog.Dialog, id, text, intentName string) *ExecutionResult {
	return analyzeInitialQuestion(d, "", id, text, intentName)
}

// AnalyzeInitialQuestionFor runs the first turn on behalf of a federation group.
// The group prefixes the mapping URIs and filters the entity values allowed in them.
func AnalyzeInitialQuestionFor(d *dialog.Dialog, group, id, text, intentName string) *ExecutionResult {
	return analyzeInitialQuestion(d, group, id, text, intentName)
}

func analyzeInitialQuestion(d *dialog.Dialog, group, id, text, intentName string) *ExecutionResult {
	res := newResult(id, text, intentName)
	intent, ok := FindIntent(d, intentName)
	if !ok {
		res.logf("Intent name %s undefined in dialog file %s", intentName, d.FilePath)
		return res
	}
	if group != "" {
		res.Values[mappinguri.FederationGroupVariable] = group
	}
	res.Values[mappinguri.IntentVariable] = intent.Intent.Name
	newRun(d, res).userInput(intent, text, intent.Intent.EntityMatches)
	return res
}

// ExecuteUserInput continues a conversation stopped on a disambiguation question
// with the user's answer. Variable values of prior are carried over.
func ExecuteUserInput(d *dialog.Dialog, question *dialog.Node, text string, prior *ExecutionResult) *ExecutionResult {
	res := newResult(prior.QuestionID, text, prior.IntentName)
	maps.Copy(res.Values, prior.Values)
	newRun(d, res).userInput(question, text, []*dialog.EntityMatch{question.Question.EntityMatch})
	return res
}

// AnalyzeDisambiguationOption replays one option of a question as if the user had
// chosen it.
func AnalyzeDisambiguationOption(d *dialog.Dialog, question *dialog.Node, option *dialog.DisambiguationOption, intentName string) *ExecutionResult {
	res := newResult(strconv.Itoa(question.Line), question.Question.MessageText, intentName)
	res.Option = option
	newRun(d, res).userInput(question, option.Text, []*dialog.EntityMatch{question.Question.EntityMatch})
	return res
}

type run struct {
	d      *dialog.Dialog
	res    *ExecutionResult
	looped map[dialog.NodeID]bool
	visits int
}

func newRun(d *dialog.Dialog, res *ExecutionResult) *run {
	return &run{d: d, res: res, looped: make(map[dialog.NodeID]bool)}
}

func (r *run) visit(e NodeExecution) bool {
	r.visits++
	if r.visits > maxVisits {
		r.res.logf("Execution stopped after %d node visits, the dialog may loop", maxVisits)
		return false
	}
	r.res.Path = append(r.res.Path, e)
	return true
}

func (r *run) userInput(n *dialog.Node, text string, ems []*dialog.EntityMatch) {
	var entities []*dialog.Entity
	for _, em := range ems {
		if em != nil && em.Entity != nil {
			entities = append(entities, em.Entity)
		}
	}
	match := matcher.Match(r.d, entities, text)
	if !r.visit(NodeExecution{Node: n, Match: match}) {
		return
	}

	for _, e := range entities {
		em := entityMatchFor(ems, e)
		for i, ev := range match.ValuesOf(e) {
			switch {
			case i == 0 && em.Variable1 != "":
				r.res.Values[em.Variable1] = ev.Name
			case i == 1 && em.Variable2 != "":
				r.res.Values[em.Variable2] = ev.Name
			}
		}
	}
	r.assign(n)
	r.selectChild(n, dialog.NoNode)
}

func entityMatchFor(ems []*dialog.EntityMatch, e *dialog.Entity) *dialog.EntityMatch {
	for _, em := range ems {
		if em != nil && em.Entity == e {
			return em
		}
	}
	return nil
}

func (r *run) assign(n *dialog.Node) {
	values := r.res.Values
	for _, a := range n.Assignments {
		if a.Operator != dialog.CopyFromVariable {
			values[a.Variable] = a.Value
			continue
		}
		if v, ok := values[a.Value]; ok {
			values[a.Variable] = v
		} else {
			delete(values, a.Variable)
		}
	}
}

// selectChild runs the first applicable child of parent, starting at from when set.
func (r *run) selectChild(parent *dialog.Node, from dialog.NodeID) {
	started := from == dialog.NoNode
	for _, id := range parent.Children {
		if !started {
			if id != from {
				continue
			}
			started = true
		}
		child := r.d.Node(id)
		switch child.Kind {
		case dialog.KindSwitch:
			if r.switchApplies(child) {
				r.enter(child)
				return
			}
		case dialog.KindSwitchLoopOnce:
			if r.loopOnce(child) {
				return
			}
		case dialog.KindConditions:
			if r.conditionsHold(child.Conditions) {
				r.enter(child)
				return
			}
		case dialog.KindDirectAnswer, dialog.KindDisambiguationQuestion, dialog.KindRedirectToLongTail:
			r.visit(NodeExecution{Node: child})
			return
		case dialog.KindFatHeadAnswers:
			r.fatHead(child)
			return
		case dialog.KindGoto, dialog.KindGotoNext:
			r.navigate(child)
			return
		}
	}
}

func (r *run) enter(n *dialog.Node) {
	if !r.visit(NodeExecution{Node: n}) {
		return
	}
	r.assign(n)
	r.selectChild(n, dialog.NoNode)
}

func (r *run) switchApplies(n *dialog.Node) bool {
	em := n.EntityMatch
	if r.res.Values[em.Variable1] != "" {
		return true
	}
	return em.Variable2 != "" && r.res.Values[em.Variable2] != ""
}

// loopOnce moves the second entity value into the first variable and runs the
// owning switch again. It applies once per switch and turn.
func (r *run) loopOnce(n *dialog.Node) bool {
	em := n.EntityMatch
	if r.looped[n.ID] || em.Variable2 == "" {
		return false
	}
	r.looped[n.ID] = true
	if !r.visit(NodeExecution{Node: n}) {
		return true
	}
	if v := r.res.Values[em.Variable2]; v != "" {
		r.res.Values[em.Variable1] = v
	} else {
		delete(r.res.Values, em.Variable1)
	}
	delete(r.res.Values, em.Variable2)

	sw := r.d.Node(n.Parent)
	if sw != nil && r.switchApplies(sw) {
		r.selectChild(sw, dialog.NoNode)
	}
	return true
}

func (r *run) conditionsHold(g *dialog.ConditionGroup) bool {
	result := g.Operator == dialog.And
	for _, c := range g.Conditions {
		v := r.res.Values[c.Variable]
		var ok bool
		switch c.Operator {
		case dialog.HasValue:
			ok = v != ""
		case dialog.Equals:
			ok = v == c.Value
		}
		if g.Operator == dialog.And {
			result = result && ok
		} else {
			result = result || ok
		}
	}
	return result
}

func (r *run) fatHead(n *dialog.Node) {
	r.assign(n)
	uri, redirect, unsupported := mappinguri.Compute(r.res.Values, r.d.MappingConfig, r.d)
	e := NodeExecution{Node: n}
	if !redirect && !unsupported {
		e.MappingURI = uri
	}
	r.visit(e)
}

// navigate jumps to the goto target and runs it among its own siblings.
func (r *run) navigate(n *dialog.Node) {
	r.assign(n)
	if !r.visit(NodeExecution{Node: n}) {
		return
	}
	target := r.d.Node(n.Goto.Target)
	if target == nil {
		r.res.logf("Goto node is a dead end : the reference to target node id '%s' could not be resolved", n.Goto.TargetID)
		return
	}
	if parent := r.d.Node(target.Parent); parent != nil {
		r.selectChild(parent, target.ID)
		return
	}
	r.selectChild(target, dialog.NoNode)
}
