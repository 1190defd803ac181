package dialog

import "fmt"

// VariableType is the declared type of a dialog variable.
type VariableType int

const (
	TypeText VariableType = iota
	TypeNumber
	TypeYesNo
)

func (t VariableType) String() string {
	switch t {
	case TypeNumber:
		return "NUMBER"
	case TypeYesNo:
		return "YESNO"
	default:
		return "TEXT"
	}
}

// ReferenceKind tells whether a node reads or writes a variable.
type ReferenceKind int

const (
	Read ReferenceKind = iota
	Write
)

// VariableReference links a variable to a node using it.
type VariableReference struct {
	Node NodeID
	Kind ReferenceKind
}

// Variable is a declared dialog variable.
type Variable struct {
	Name       string
	Type       VariableType
	InitValue  string
	Line       int
	References []VariableReference
}

// Constant is a named prompt fragment.
type Constant struct {
	Name         string
	Value        string
	Line         int
	ReferencedBy []NodeID
}

// AssignmentOperator is the action applied to a variable.
type AssignmentOperator int

const (
	SetTo AssignmentOperator = iota
	SetToBlank
	SetToYes
	SetToNo
	CopyFromVariable
)

func (o AssignmentOperator) String() string {
	switch o {
	case SetTo:
		return "SET_TO"
	case SetToBlank:
		return "SET_TO_BLANK"
	case SetToYes:
		return "SET_TO_YES"
	case SetToNo:
		return "SET_TO_NO"
	case CopyFromVariable:
		return "COPY_FROM_VARIABLE"
	default:
		return fmt.Sprintf("AssignmentOperator(%d)", int(o))
	}
}

// Assignment sets Variable according to Operator. For CopyFromVariable, Value
// names the source variable.
type Assignment struct {
	Variable string
	Operator AssignmentOperator
	Value    string
}

// NewAssignment builds an assignment with the literal values implied by the operator.
// SetTo with an empty value becomes SetToBlank.
func NewAssignment(variable string, op AssignmentOperator, value string) *Assignment {
	switch op {
	case SetTo:
		if value == "" {
			op = SetToBlank
		}
	case SetToBlank:
		value = ""
	case SetToYes:
		value = "yes"
	case SetToNo:
		value = "no"
	}
	return &Assignment{Variable: variable, Operator: op, Value: value}
}

func (a *Assignment) String() string {
	switch a.Operator {
	case SetToBlank:
		return a.Variable + "=''"
	case CopyFromVariable:
		return a.Variable + "={" + a.Value + "}"
	default:
		return a.Variable + "='" + a.Value + "'"
	}
}

// ConditionOperator is the comparison applied by a condition.
type ConditionOperator int

const (
	Equals ConditionOperator = iota
	HasValue
)

// GroupOperator combines the conditions of a group.
type GroupOperator int

const (
	Or GroupOperator = iota
	And
)

// Condition tests a variable.
type Condition struct {
	Variable string
	Operator ConditionOperator
	Value    string
}

func (c *Condition) String() string {
	if c.Operator == HasValue {
		return c.Variable + " has value"
	}
	return c.Variable + "='" + c.Value + "'"
}

// EntityMatch binds up to two variables to the values of an entity matched in user text.
type EntityMatch struct {
	EntityName string
	Entity     *Entity
	Variable1  string
	Variable2  string
}
