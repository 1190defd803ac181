package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialogtool/internal/dialog"
	"dialogtool/internal/mappinguri"
)

func newDialog() *dialog.Dialog {
	d := dialog.New("test.xml")
	d.MappingConfig = mappinguri.Savings
	d.AddVariable(&dialog.Variable{Name: "Product_Var", Line: 1})
	d.AddVariable(&dialog.Variable{Name: "Event_Var", InitValue: "open", Line: 2})
	d.AddVariable(&dialog.Variable{Name: "Mode_Var", InitValue: "web", Line: 3})
	return d
}

func TestNew_SeedsInitValues(t *testing.T) {
	s := New(newDialog())
	v, ok := s.Value("Event_Var")
	require.True(t, ok)
	assert.Equal(t, "open", v)
	assert.Empty(t, s.Values("Product_Var"))
}

func TestApplyConditions_OrKeepsAlternatives(t *testing.T) {
	s := New(newDialog())
	g := &dialog.ConditionGroup{Operator: dialog.Or, Conditions: []*dialog.Condition{
		{Variable: "Product_Var", Operator: dialog.Equals, Value: "pel"},
		{Variable: "Product_Var", Operator: dialog.Equals, Value: "cel"},
		{Variable: "Event_Var", Operator: dialog.HasValue},
	}}
	assert.True(t, s.ApplyConditions(g))
	assert.Equal(t, []string{"pel", "cel"}, s.Values("Product_Var"))
	_, ok := s.Value("Product_Var")
	assert.False(t, ok)

	assert.False(t, s.ApplyConditions(g))
}

func TestApplyConditions_AndKeepsFirst(t *testing.T) {
	s := New(newDialog())
	g := &dialog.ConditionGroup{Operator: dialog.And, Conditions: []*dialog.Condition{
		{Variable: "Product_Var", Operator: dialog.Equals, Value: "pel"},
		{Variable: "Product_Var", Operator: dialog.Equals, Value: "cel"},
	}}
	s.ApplyConditions(g)
	assert.Equal(t, []string{"pel"}, s.Values("Product_Var"))
}

func TestAssign(t *testing.T) {
	s := New(newDialog())

	assert.True(t, s.Assign(dialog.NewAssignment("Product_Var", dialog.SetTo, "pel"), dialog.KindGoto))
	assert.Equal(t, []string{"pel"}, s.Values("Product_Var"))

	assert.True(t, s.Assign(dialog.NewAssignment("Mode_Var", dialog.SetToYes, ""), dialog.KindGoto))
	assert.Equal(t, []string{"yes"}, s.Values("Mode_Var"))

	assert.True(t, s.Assign(dialog.NewAssignment("Mode_Var", dialog.CopyFromVariable, "Product_Var"), dialog.KindGoto))
	assert.Equal(t, []string{"pel"}, s.Values("Mode_Var"))

	assert.True(t, s.Assign(dialog.NewAssignment("Mode_Var", dialog.CopyFromVariable, "Unknown_Var"), dialog.KindGoto))
	assert.Empty(t, s.Values("Mode_Var"))
}

func TestAssign_BlankSuppressedOnAnswerNodes(t *testing.T) {
	s := New(newDialog())
	s.Set("Product_Var", "pel")
	blank := dialog.NewAssignment("Product_Var", dialog.SetToBlank, "")

	assert.False(t, s.Assign(blank, dialog.KindFatHeadAnswers))
	assert.False(t, s.Assign(blank, dialog.KindRedirectToLongTail))
	assert.Equal(t, []string{"pel"}, s.Values("Product_Var"))

	assert.True(t, s.Assign(blank, dialog.KindGoto))
	assert.Empty(t, s.Values("Product_Var"))

	s.Set("Mode_Var", "web")
	assert.True(t, s.Assign(dialog.NewAssignment("Mode_Var", dialog.SetToBlank, ""), dialog.KindFatHeadAnswers))
}

func TestClone_IsIndependent(t *testing.T) {
	s := New(newDialog())
	s.Set("Product_Var", "pel")
	c := s.Clone()
	c.Set("Product_Var", "cel")
	assert.Equal(t, []string{"pel"}, s.Values("Product_Var"))
	assert.Equal(t, []string{"cel"}, c.Values("Product_Var"))
}

func TestEntityFromVariable(t *testing.T) {
	d := newDialog()
	e := dialog.NewEntity("PRODUCT_ENTITY", 1)
	intent := d.NewNode(dialog.KindIntent, dialog.NoNode)
	intent.Intent = &dialog.IntentInfo{Name: "Savings_Rate", EntityMatches: []*dialog.EntityMatch{
		{EntityName: e.Name, Entity: e, Variable1: "Product_Var", Variable2: "Product_Var_2"},
	}}

	s := New(d)
	s.EnterIntent(intent)
	assert.Same(t, e, s.EntityFromVariable("Product_Var_2"))
	assert.Nil(t, s.EntityFromVariable("Event_Var"))
	v, _ := s.Value(mappinguri.IntentVariable)
	assert.Equal(t, "Savings_Rate", v)
}

func TestResetEntityVariablesNotExplicitlySet(t *testing.T) {
	s := New(newDialog())
	s.Set("Product_Var", "pel")

	reset := s.ResetEntityVariablesNotExplicitlySet([]string{"Product_Var", "Event_Var", "Person_Var"})

	assert.Equal(t, []string{"Event_Var", "Person_Var"}, reset)
	assert.Empty(t, s.Values("Event_Var"))
	assert.Equal(t, []string{"pel"}, s.Values("Product_Var"))
}
