package dialog

import (
	"fmt"
	"strings"
)

// NodeID addresses a node in the dialog arena.
type NodeID int

// NoNode is the zero handle for "no parent" and unresolved goto targets.
const NoNode NodeID = -1

// NodeKind is the closed set of dialog node variants.
type NodeKind int

const (
	KindIntent NodeKind = iota
	KindConditions
	KindSwitch
	KindSwitchLoopOnce
	KindDisambiguationQuestion
	KindFatHeadAnswers
	KindRedirectToLongTail
	KindDirectAnswer
	KindGoto
	KindGotoNext
)

// NodeKinds lists every kind in statistics order.
var NodeKinds = []NodeKind{
	KindIntent, KindConditions, KindSwitch, KindSwitchLoopOnce, KindDisambiguationQuestion,
	KindFatHeadAnswers, KindRedirectToLongTail, KindDirectAnswer, KindGoto, KindGotoNext,
}

func (k NodeKind) String() string {
	switch k {
	case KindIntent:
		return "MatchIntentAndEntities"
	case KindConditions:
		return "DialogVariableConditions"
	case KindSwitch:
		return "SwitchOnEntityVariables"
	case KindSwitchLoopOnce:
		return "SwitchLoopOnce"
	case KindDisambiguationQuestion:
		return "DisambiguationQuestion"
	case KindFatHeadAnswers:
		return "FatHeadAnswers"
	case KindRedirectToLongTail:
		return "RedirectToLongTail"
	case KindDirectAnswer:
		return "DirectAnswer"
	case KindGoto:
		return "GotoNode"
	case KindGotoNext:
		return "GotoNext"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// HasGotoTarget reports whether nodes of this kind carry a GotoTarget payload.
func (k NodeKind) HasGotoTarget() bool {
	switch k {
	case KindFatHeadAnswers, KindRedirectToLongTail, KindDirectAnswer, KindGoto, KindGotoNext:
		return true
	}
	return false
}

// Node is one element of the dialog tree. Only the payload matching Kind is set.
type Node struct {
	ID           NodeID
	Kind         NodeKind
	DialogNodeID string
	Line         int
	Parent       NodeID
	Children     []NodeID
	Assignments  []*Assignment
	ReferencedBy []NodeID

	Intent      *IntentInfo
	Conditions  *ConditionGroup
	EntityMatch *EntityMatch
	Question    *Question
	Goto        *GotoTarget
}

// IntentInfo is the payload of an intent node.
type IntentInfo struct {
	Folder        string
	Name          string
	Questions     []string
	EntityMatches []*EntityMatch
}

// ConditionGroup is the payload of a variable conditions node.
type ConditionGroup struct {
	Operator   GroupOperator
	Conditions []*Condition
}

// Question is the payload of a disambiguation question node.
type Question struct {
	MessageExpression string
	MessageText       string
	Options           []*DisambiguationOption
	EntityMatch       *EntityMatch
}

// DisambiguationOption is one choice offered to the user, bound to an entity value.
type DisambiguationOption struct {
	Text  string
	Value *EntityValue
}

// GotoTarget is the payload shared by goto and answer nodes.
type GotoTarget struct {
	TargetID          string
	Target            NodeID
	MessageExpression string
	MessageText       string
	MappingURIs       []string

	EntityVariablesNotExplicitlySet []string
}

// NewGotoTarget returns an unresolved goto payload.
func NewGotoTarget(targetID string) *GotoTarget {
	return &GotoTarget{TargetID: targetID, Target: NoNode}
}

func (n *Node) String() string {
	switch n.Kind {
	case KindIntent:
		return "Intent:" + n.Intent.Name
	case KindConditions:
		return "If:" + n.Conditions.String()
	case KindSwitch:
		return "SwitchOn:" + n.EntityMatch.EntityName
	case KindSwitchLoopOnce:
		return "SwitchLoopOnce:" + n.EntityMatch.EntityName
	case KindDisambiguationQuestion:
		parts := make([]string, 0, len(n.Question.Options))
		for _, opt := range n.Question.Options {
			if opt.Value == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s='%s'", opt.Value.Entity.Name, opt.Value.Name))
		}
		return "DisambiguationQuestion:" + strings.Join(parts, " or ")
	case KindFatHeadAnswers:
		if len(n.Goto.MappingURIs) == 0 {
			return "FatHeadAnswers"
		}
		return "FatHeadAnswers:" + strings.Join(n.Goto.MappingURIs, "|")
	case KindRedirectToLongTail:
		return "RedirectToLongTail"
	case KindDirectAnswer:
		return "DirectAnswer:" + n.Goto.MessageText
	case KindGoto, KindGotoNext:
		return "Goto:" + n.Goto.TargetID
	default:
		return n.Kind.String()
	}
}

func (g *ConditionGroup) String() string {
	sep := " or "
	if g.Operator == And {
		sep = " and "
	}
	parts := make([]string, len(g.Conditions))
	for i, c := range g.Conditions {
		parts[i] = c.String()
	}
	return strings.Join(parts, sep)
}
