package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"dialogtool/internal/dialog"
	"dialogtool/internal/mappinguri"
	"dialogtool/internal/matcher"
	"dialogtool/internal/simulator"
)

var (
	entityMatchPattern = regexp.MustCompile(`\(([^)]+)\)\s*=\s*\{([^}]+)\}`)
	constantPattern    = regexp.MustCompile(`\[\s*([^\s\]]+)\s*\]`)
	optionsPattern     = regexp.MustCompile(`\s*<ul>\s*(?:<li\s*(?:data-auto-question="true")?\s*>.+?</li>\s*)+</ul>\s*`)
	optionPattern      = regexp.MustCompile(`<li\s*(?:data-auto-question="true")?\s*>(.+?)</li>`)
)

func unexpectedChild(child *element, below string) error {
	return &CompileError{
		Line:    child.line,
		Element: child.name,
		Msg:     fmt.Sprintf("Unexpected child element %s below <%s>", child.name, below),
	}
}

// switchState follows the inline switch opened by the first <if> of a sibling
// list, until its closing <if> on the second entity variable is reached.
type switchState struct {
	secondIf *element
	inline   *dialog.Node
}

func (c *compiler) closeInlineSwitch(st *switchState, secondIf *element) {
	if st.inline != nil {
		c.addSwitchLoopOnce(st.inline, secondIf)
	}
	st.inline = nil
}

func (c *compiler) readIntentsFolder(label string, folder *element) error {
	for _, sub := range folder.childrenNamed("folder") {
		if sub.isOffline() {
			continue
		}
		if err := c.readIntentsFolder(sub.attrOr("label"), sub); err != nil {
			return err
		}
	}
	for _, input := range folder.childrenNamed("input") {
		if input.isOffline() {
			continue
		}
		if err := c.readIntent(label, input); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) readIntent(folder string, input *element) error {
	grammar := input.child("grammar")
	items := grammar.childrenNamed("item")
	if len(items) == 0 {
		return &CompileError{Line: input.line, Element: input.name, Msg: "intent <input> without <grammar><item> intent name"}
	}
	name := strings.TrimSpace(items[0].value())
	if strings.EqualFold(name, "TBPs") {
		c.d.Report(input.line, dialog.Info, "Ignored \"%s\" intent node", name)
		return nil
	}
	questions := make([]string, 0, len(items)-1)
	for _, item := range items[1:] {
		questions = append(questions, strings.TrimSpace(item.value()))
	}

	sim := simulator.New(c.d)
	n := c.d.NewNode(dialog.KindIntent, dialog.NoNode)
	n.Intent = &dialog.IntentInfo{Folder: folder, Name: name, Questions: questions}
	if err := c.setIDLineAndAssignments(n, input, sim, input); err != nil {
		return err
	}
	for _, child := range input.childrenNamed("input") {
		if child.isOffline() {
			continue
		}
		em, err := c.readEntityMatch(n, child)
		if err != nil {
			return err
		}
		if em != nil {
			n.Intent.EntityMatches = append(n.Intent.EntityMatches, em)
		}
	}
	c.d.AddIntent(n)
	sim.EnterIntent(n)

	var st switchState
	first := true
	for _, child := range input.online() {
		if child == st.secondIf {
			c.closeInlineSwitch(&st, child)
			continue
		}
		var err error
		switch child.name {
		case "grammar", "action", "input":
			continue
		case "if":
			parent := n
			if st.inline != nil {
				parent = st.inline
			}
			err = c.readConditions(parent, child, sim, first, &st)
		case "output":
			err = c.readOutput(n, child, sim)
		default:
			return unexpectedChild(child, "input")
		}
		if err != nil {
			return err
		}
		first = false
	}
	return nil
}

func (c *compiler) readOutput(parent *dialog.Node, output *element, sim *simulator.Simulator) error {
	if output.child("getUserInput") != nil {
		return c.readQuestion(parent, output, sim)
	}
	return c.readGotoOrAnswer(parent, output, sim)
}

func (c *compiler) readEntityMatch(n *dialog.Node, input *element) (*dialog.EntityMatch, error) {
	grammar := input.child("grammar")
	var entity, var1, var2 string
	var item1, item2 *element
	for _, item := range grammar.childrenNamed("item") {
		for i, m := range entityMatchPattern.FindAllStringSubmatch(item.value(), -1) {
			if entity == "" {
				entity = m[1]
			} else if entity != m[1] {
				return nil, &CompileError{Line: item.line, Element: item.name, Msg: "Incoherent EntityMatch pattern"}
			}
			switch i {
			case 0:
				var1, item1 = m[2], item
			case 1:
				var2, item2 = m[2], item
			}
		}
	}
	if entity == "" {
		line := input.line
		if grammar != nil {
			line = grammar.line
		}
		c.d.Report(line, dialog.IncorrectPattern, "Invalid pattern detected : expected entity match, found direct text pattern")
		return nil, nil
	}

	extracted1, extracted2 := false, false
	for _, action := range input.childrenNamed("action") {
		switch action.attrOr("varName") {
		case var1:
			extracted1 = true
		case var2:
			extracted2 = true
		}
	}
	if var1 != "" && !extracted1 {
		c.d.Report(item1.line, dialog.IncorrectPattern, "Matched entity %s but did not store its name correctly in %s", entity, var1)
		var1 = ""
	}
	if var2 != "" && !extracted2 {
		c.d.Report(item2.line, dialog.IncorrectPattern, "Matched entity %s but did not store its name correctly in %s", entity, var2)
		var2 = ""
	}

	em := &dialog.EntityMatch{EntityName: entity, Variable1: var1, Variable2: var2}
	c.d.LinkEntityMatch(n, em)
	return em, nil
}

// setIDLineAndAssignments registers the id of idEl for n and applies the actions
// found directly below each of the variable elements.
func (c *compiler) setIDLineAndAssignments(n *dialog.Node, idEl *element, sim *simulator.Simulator, variableEls ...*element) error {
	n.Line = idEl.line
	if id, ok := idEl.attr("id"); ok {
		c.d.RegisterNode(n, id)
	}

	var previous *element
	for _, el := range variableEls {
		if el == nil || el == previous {
			previous = el
			continue
		}
		previous = el
		for _, action := range el.childrenNamed("action") {
			a, err := c.readAction(action)
			if err != nil {
				return err
			}
			if a == nil || !c.d.LinkAssignment(n, a) {
				continue
			}
			if sim.Assign(a, n.Kind) {
				n.Assignments = append(n.Assignments, a)
			}
		}
	}
	return nil
}

func (c *compiler) readAction(action *element) (*dialog.Assignment, error) {
	variable := action.attrOr("varName")
	opName := action.attrOr("operator")
	var op dialog.AssignmentOperator
	switch opName {
	case "SET_TO":
		op = dialog.SetTo
	case "SET_TO_BLANK":
		op = dialog.SetToBlank
	case "SET_TO_YES":
		op = dialog.SetToYes
	case "SET_TO_NO":
		op = dialog.SetToNo
	case "SET_AS_USER_INPUT", "APPEND":
		c.d.Report(action.line, dialog.Info, "Action with operator %s ignored while reading the Xml dialog file", opName)
		return nil, nil
	default:
		return nil, &CompileError{Line: action.line, Element: action.name, Msg: fmt.Sprintf("Unexpected action operator %s", opName)}
	}

	value := strings.TrimSpace(action.value())
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		if strings.HasSuffix(value, ":name}") {
			c.d.Report(action.line, dialog.IncorrectPattern, "Unsupported variable internal field to variable value assignment : %s => %s", value, variable)
			return nil, nil
		}
		return dialog.NewAssignment(variable, dialog.CopyFromVariable, value[1:len(value)-1]), nil
	}
	return dialog.NewAssignment(variable, op, value), nil
}

// resolvePrompt returns the first prompt item and its text with constant
// references replaced by their values.
func (c *compiler) resolvePrompt(n *dialog.Node, prompt *element) (expression, text string) {
	item := prompt.child("item")
	if item == nil {
		return "", ""
	}
	expression = item.value()
	text = constantPattern.ReplaceAllStringFunc(expression, func(ref string) string {
		name := constantPattern.FindStringSubmatch(ref)[1]
		if cst, ok := c.d.LinkConstant(n, item.line, name); ok {
			return cst.Value
		}
		return ref
	})
	return expression, text
}

func (c *compiler) readQuestion(parent *dialog.Node, output *element, sim *simulator.Simulator) error {
	getUserInput := output.child("getUserInput")

	n := c.d.NewNode(dialog.KindDisambiguationQuestion, parent.ID)
	n.Question = &dialog.Question{}
	if err := c.setIDLineAndAssignments(n, output, sim, getUserInput); err != nil {
		return err
	}

	expression, text := c.resolvePrompt(n, output.child("prompt"))
	var options []string
	if block := optionsPattern.FindString(text); block != "" {
		for _, m := range optionPattern.FindAllStringSubmatch(block, -1) {
			options = append(options, strings.TrimSpace(m[1]))
		}
		text = optionsPattern.ReplaceAllString(text, "")
	}
	n.Question.MessageExpression = expression
	n.Question.MessageText = strings.TrimSpace(text)

	if input := getUserInput.child("input"); input != nil {
		em, err := c.readEntityMatch(n, input)
		if err != nil {
			return err
		}
		n.Question.EntityMatch = em
		c.bindOptions(n, em, options)
		if err := c.readQuestionChildren(n, input.children, sim); err != nil {
			return err
		}
	}
	sim.EnterQuestion(n)

	if err := c.readQuestionChildren(n, getUserInput.children, sim); err != nil {
		return err
	}
	if last := output.child("output"); last != nil {
		return c.readOutput(n, last, sim)
	}
	return nil
}

func (c *compiler) bindOptions(n *dialog.Node, em *dialog.EntityMatch, options []string) {
	if em == nil {
		c.d.Report(n.Line, dialog.IncorrectPattern, "Disambiguation question without any entity match => dead end")
		return
	}
	if len(options) == 0 {
		c.d.Report(n.Line, dialog.IncorrectPattern, "Disambiguation question on entity %s doesn't provide options to guide the user", em.EntityName)
		return
	}
	if em.Entity == nil {
		return
	}
	for _, option := range options {
		res := matcher.Match(c.d, []*dialog.Entity{em.Entity}, option)
		if len(res.Matches) == 0 {
			msg := fmt.Sprintf("Disambiguation option \"%s\" doesn't match any value of entity %s", option, em.EntityName)
			for _, sub := range res.Substitutions {
				msg += " > " + sub.String()
			}
			if s := c.d.SuggestValueFromText(em.Entity, option); s != nil {
				msg += " => did you mean " + s.Entity.Name + "='" + s.Name + "' ?"
			}
			c.d.Report(n.Line, dialog.InvalidReference, "%s", msg)
			continue
		}
		ev := res.Matches[0].Value
		n.Question.Options = append(n.Question.Options, &dialog.DisambiguationOption{Text: option, Value: ev})
		ev.ReferencedBy = append(ev.ReferencedBy, n.ID)
	}
}

func (c *compiler) readQuestionChildren(q *dialog.Node, children []*element, sim *simulator.Simulator) error {
	var st switchState
	first := true
	for _, child := range children {
		if child.isOffline() {
			continue
		}
		if child == st.secondIf {
			c.closeInlineSwitch(&st, child)
			continue
		}
		var err error
		switch child.name {
		case "input", "action", "grammar":
			continue
		case "if":
			parent := q
			if st.inline != nil {
				parent = st.inline
			}
			err = c.readConditions(parent, child, sim, first, &st)
		case "output", "goto":
			err = c.readGotoOrAnswer(q, child, sim)
		default:
			return unexpectedChild(child, "getUserInput")
		}
		if err != nil {
			return err
		}
		first = false
	}
	return nil
}

func (c *compiler) readGotoOrAnswer(parent *dialog.Node, el *element, sim *simulator.Simulator) error {
	target := el
	var prompt, gotoEl *element
	if el.name == "output" {
		if inner := el.child("output"); inner != nil {
			target = inner
		}
		prompt = target.child("prompt")
		gotoEl = target.child("goto")
	} else {
		gotoEl = el
	}

	ref := ""
	if gotoEl != nil {
		if r, ok := gotoEl.attr("ref"); ok {
			ref = r
		} else {
			c.d.Report(gotoEl.line, dialog.IncorrectPattern, "Goto node without ref attribute => dead end")
		}
	}

	kind := dialog.KindGoto
	switch {
	case ref == c.d.StartNodeID:
		kind = dialog.KindDirectAnswer
	case slices.Contains(c.d.FatHeadAnswerNodeIDs, ref):
		kind = dialog.KindFatHeadAnswers
	case ref == c.d.LongTailAnswerNodeID:
		kind = dialog.KindRedirectToLongTail
	}

	n := c.d.NewNode(kind, parent.ID)
	n.Goto = dialog.NewGotoTarget(ref)
	if err := c.setIDLineAndAssignments(n, el, sim, target, gotoEl); err != nil {
		return err
	}
	if prompt != nil {
		n.Goto.MessageExpression, n.Goto.MessageText = c.resolvePrompt(n, prompt)
		n.Goto.MessageText = strings.TrimSpace(n.Goto.MessageText)
	}

	switch n.Kind {
	case dialog.KindFatHeadAnswers:
		c.generateMappingURIs(n, sim)
	case dialog.KindGoto:
		if ref == "" {
			c.d.Report(n.Line, dialog.IncorrectPattern, "Goto pattern without target node reference => dead end")
		}
	}
	return nil
}

func (c *compiler) generateMappingURIs(n *dialog.Node, sim *simulator.Simulator) {
	cfg := c.d.MappingConfig
	state := sim.Clone()
	n.Goto.EntityVariablesNotExplicitlySet = state.ResetEntityVariablesNotExplicitlySet(cfg.EntityVariables())
	uris, redirect := mappinguri.Generate(state, cfg, c.d)
	if redirect {
		n.Kind = dialog.KindRedirectToLongTail
		return
	}
	n.Goto.MappingURIs = uris
}

func lastChildNamed(e *element, name string) *element {
	children := e.childrenNamed(name)
	if len(children) == 0 {
		return nil
	}
	return children[len(children)-1]
}

// closesSwitch reports whether ifEl opens with a HAS_VALUE test on variable.
func closesSwitch(ifEl *element, variable string) bool {
	if ifEl == nil || variable == "" {
		return false
	}
	cond := ifEl.child("cond")
	return cond != nil && cond.attrOr("varName") == variable && cond.attrOr("operator") == "HAS_VALUE"
}

func entityMatchOnVariable1(sim *simulator.Simulator, variable string) *dialog.EntityMatch {
	for _, em := range sim.LastEntityMatches() {
		if em != nil && em.Variable1 == variable {
			return em
		}
	}
	return nil
}

func (c *compiler) newSwitch(parent *dialog.Node, em *dialog.EntityMatch) *dialog.Node {
	n := c.d.NewNode(dialog.KindSwitch, parent.ID)
	n.EntityMatch = em
	return n
}

func (c *compiler) addSwitchLoopOnce(sw *dialog.Node, secondIf *element) {
	n := c.d.NewNode(dialog.KindSwitchLoopOnce, sw.ID)
	n.EntityMatch = sw.EntityMatch
	n.Line = secondIf.line
	c.d.LinkSwitch(n)
}

func (c *compiler) readConditions(parent *dialog.Node, ifEl *element, sim *simulator.Simulator, isFirst bool, st *switchState) error {
	sim = sim.Clone()

	group := &dialog.ConditionGroup{Operator: dialog.Or}
	if strings.EqualFold(ifEl.attrOr("matchType"), "ALL") {
		group.Operator = dialog.And
	}
	for _, condEl := range ifEl.childrenNamed("cond") {
		cond := &dialog.Condition{
			Variable: condEl.attrOr("varName"),
			Operator: dialog.Equals,
			Value:    strings.TrimSpace(condEl.value()),
		}
		if strings.EqualFold(condEl.attrOr("operator"), "HAS_VALUE") {
			cond.Operator = dialog.HasValue
		}
		group.Conditions = append(group.Conditions, cond)
	}
	conds := group.Conditions

	var node *dialog.Node
	var ownSecondIf *element
	ownedBySwitch := false

	// A lone HAS_VALUE test on the first entity variable whose last nested <if>
	// tests the second one.
	if len(conds) == 1 && conds[0].Operator == dialog.HasValue {
		if em := entityMatchOnVariable1(sim, conds[0].Variable); em != nil {
			if last := lastChildNamed(ifEl, "if"); closesSwitch(last, em.Variable2) {
				ownSecondIf = last
				node = c.newSwitch(parent, em)
				if err := c.setIDLineAndAssignments(node, ifEl, sim, ifEl); err != nil {
					return err
				}
				c.d.LinkSwitch(node)
			}
		}
	}

	// A first <if> testing a value of the first entity variable whose last sibling
	// <if> tests the second one: the siblings in between hang below an inline switch.
	if node == nil && parent.Kind != dialog.KindSwitch && isFirst && len(conds) > 0 && conds[0].Operator == dialog.Equals {
		if em := entityMatchOnVariable1(sim, conds[0].Variable); em != nil {
			if last := lastChildNamed(ifEl.parent, "if"); closesSwitch(last, em.Variable2) {
				sw := c.newSwitch(parent, em)
				if err := c.setIDLineAndAssignments(sw, ifEl, sim, ifEl); err != nil {
					return err
				}
				c.d.LinkSwitch(sw)
				st.secondIf = last
				st.inline = sw
				parent = sw
				ownedBySwitch = true
			}
		}
	}

	if node == nil {
		node = c.d.NewNode(dialog.KindConditions, parent.ID)
		node.Conditions = group
		if ownedBySwitch {
			// the inline switch already carries the id and actions of this <if>
			node.Line = ifEl.line
		} else if err := c.setIDLineAndAssignments(node, ifEl, sim, ifEl); err != nil {
			return err
		}
		for _, cond := range conds {
			c.d.LinkCondition(node, cond, sim.EntityFromVariable(cond.Variable))
		}
		sim.ApplyConditions(group)
	}

	var nested switchState
	first := true
	for _, child := range ifEl.online() {
		if child == ownSecondIf {
			c.addSwitchLoopOnce(node, child)
			continue
		}
		if child == nested.secondIf {
			c.closeInlineSwitch(&nested, child)
			continue
		}
		var err error
		switch child.name {
		case "cond", "action":
			continue
		case "if":
			p := node
			if nested.inline != nil {
				p = nested.inline
			}
			err = c.readConditions(p, child, sim, first, &nested)
		case "output":
			err = c.readOutput(node, child, sim)
		case "goto":
			err = c.readGotoOrAnswer(node, child, sim)
		default:
			return unexpectedChild(child, "if")
		}
		if err != nil {
			return err
		}
		first = false
	}
	return nil
}
