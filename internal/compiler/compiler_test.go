package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"dialogtool/internal/dialog"
	"dialogtool/internal/mappinguri"
)

// ============================================================================
// HELPERS
// ============================================================================

func compileSample(t *testing.T) *dialog.Dialog {
	t.Helper()
	d, err := CompileFile("testdata/savings.xml", Options{})
	require.NoError(t, err)
	return d
}

func messages(d *dialog.Dialog, category dialog.Category) []string {
	var out []string
	for _, diag := range d.Diagnostics {
		if diag.Category == category {
			out = append(out, diag.Message)
		}
	}
	return out
}

func childStrings(d *dialog.Dialog, n *dialog.Node) []string {
	out := make([]string, 0, len(n.Children))
	for _, id := range n.Children {
		out = append(out, d.Node(id).String())
	}
	return out
}

func minimalDoc(intents string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<dialog>
  <flow>
    <folder label="Main"><output><output id="start"/></output></folder>
    <folder label="AnswerNode" id="fathead"><output id="fathead_output"><output id="longtail"/></output></folder>
    <folder label="CM-CIC">` + intents + `</folder>
  </flow>
  <entities>
    <entity name="PRODUCT_ENTITY">
      <value name="Livret_A" value="livret A"/>
      <value name="PEL" value="pel"/>
    </entity>
  </entities>
  <constants/>
  <variables>
    <var name="Product_Var" type="TEXT"/>
    <var name="Product_Var_2" type="TEXT"/>
  </variables>
</dialog>`
}

func compileString(t *testing.T, doc string) (*dialog.Dialog, error) {
	t.Helper()
	return Compile(strings.NewReader(doc), "inline.xml", Options{})
}

// ============================================================================
// SAMPLE DOCUMENT
// ============================================================================

func TestCompile_AnswerFolderIDs(t *testing.T) {
	d := compileSample(t)

	assert.Equal(t, "start", d.StartNodeID)
	assert.Equal(t, []string{"fathead", "fathead_output"}, d.FatHeadAnswerNodeIDs)
	assert.Equal(t, "longtail", d.LongTailAnswerNodeID)
	assert.Same(t, mappinguri.Savings, d.MappingConfig)
}

func TestCompile_Statistics(t *testing.T) {
	d := compileSample(t)

	want := map[dialog.NodeKind]int{
		dialog.KindIntent:                 3,
		dialog.KindConditions:             5,
		dialog.KindSwitch:                 1,
		dialog.KindSwitchLoopOnce:         1,
		dialog.KindDisambiguationQuestion: 1,
		dialog.KindFatHeadAnswers:         1,
		dialog.KindRedirectToLongTail:     1,
		dialog.KindDirectAnswer:           3,
		dialog.KindGoto:                   2,
		dialog.KindGotoNext:               1,
	}
	if diff := cmp.Diff(want, d.Statistics()); diff != "" {
		t.Errorf("Statistics() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_DiagnosticCounts(t *testing.T) {
	d := compileSample(t)

	want := map[dialog.Category]int{
		dialog.Info:             2,
		dialog.DuplicateKey:     1,
		dialog.InvalidReference: 2,
		dialog.NeverUsed:        5,
	}
	if diff := cmp.Diff(want, d.CountByCategory()); diff != "" {
		t.Errorf("CountByCategory() mismatch (-want +got):\n%s\n%s", diff, strings.Join(d.SortedDiagnostics(), "\n"))
	}
}

func TestCompile_DiagnosticMessages(t *testing.T) {
	d := compileSample(t)

	assert.Contains(t, messages(d, dialog.Info), "Ignored \"TBPs\" intent node")
	assert.Contains(t, messages(d, dialog.Info), "Element input is disabled, you should maybe delete it")
	assert.Contains(t, messages(d, dialog.InvalidReference),
		"Entity value name 'Opne' is not defined for entity EVENT_ENTITY => did you mean EVENT_ENTITY='Open' ?")
	assert.Contains(t, messages(d, dialog.InvalidReference),
		"Goto node with invalid node reference : \"nowhere\" (target node may be offline) => dead end")
	assert.ElementsMatch(t, []string{
		"Constant UNUSED_CST is never used",
		"Variable Unused_Var is never used",
		"Concept compte courant is not linked to any entity value",
		"Entity value PRODUCT_ENTITY='LDD' is never used in dialog nodes",
		"Entity value EVENT_ENTITY='Open' is never used in dialog nodes",
	}, messages(d, dialog.NeverUsed))

	dup := messages(d, dialog.DuplicateKey)
	require.Len(t, dup, 1)
	assert.True(t, strings.HasPrefix(dup[0], "Two dialog nodes with the same id open_answer"))
}

func TestCompile_DuplicateIDFirstRegistrationWins(t *testing.T) {
	d := compileSample(t)

	n, ok := d.NodeByDialogID("open_answer")
	require.True(t, ok)
	assert.Equal(t, dialog.KindDirectAnswer, n.Kind)
	assert.Equal(t, "Vous pouvez ouvrir un livret en agence.", n.Goto.MessageText)
}

func TestCompile_IntentTree(t *testing.T) {
	d := compileSample(t)

	rate, ok := d.Intent("Savings_Rate")
	require.True(t, ok)
	assert.Equal(t, "Savings", rate.Intent.Folder)
	assert.Equal(t, []string{"quel est le taux du livret A"}, rate.Intent.Questions)
	require.Len(t, rate.Intent.EntityMatches, 1)
	em := rate.Intent.EntityMatches[0]
	assert.Equal(t, "Product_Var", em.Variable1)
	assert.Equal(t, "Product_Var_2", em.Variable2)
	assert.Equal(t, []string{"REDIRECT_LONG_TAIL='no'"}, assignmentStrings(rate))

	assert.Equal(t, []string{
		"SwitchOn:PRODUCT_ENTITY",
		"DisambiguationQuestion:PRODUCT_ENTITY='Livret_A' or PRODUCT_ENTITY='PEL'",
	}, childStrings(d, rate))

	sw := d.Node(rate.Children[0])
	assert.Equal(t, "switch_product", sw.DialogNodeID)
	assert.Equal(t, []string{
		"If:Product_Var='Livret_A'",
		"If:Product_Var='PEL'",
		"SwitchLoopOnce:PRODUCT_ENTITY",
	}, childStrings(d, sw))

	fatHead := d.Node(d.Node(sw.Children[0]).Children[0])
	assert.Equal(t, []string{"/intent/Savings_Rate/product_entity/Livret_A"}, fatHead.Goto.MappingURIs)
	assert.NotContains(t, fatHead.Goto.EntityVariablesNotExplicitlySet, "Product_Var")
	assert.Contains(t, fatHead.Goto.EntityVariablesNotExplicitlySet, "Event_Var")

	answer := d.Node(d.Node(sw.Children[1]).Children[0])
	assert.Equal(t, "DirectAnswer:Le PEL a un taux fixe chez Banque Exemple.", answer.String())
	assert.Equal(t, "Le PEL a un taux fixe chez [BANK_NAME].", answer.Goto.MessageExpression)
}

func assignmentStrings(n *dialog.Node) []string {
	out := make([]string, len(n.Assignments))
	for i, a := range n.Assignments {
		out[i] = a.String()
	}
	return out
}

func TestCompile_DisambiguationQuestion(t *testing.T) {
	d := compileSample(t)

	q, ok := d.NodeByDialogID("question_product")
	require.True(t, ok)
	require.Equal(t, dialog.KindDisambiguationQuestion, q.Kind)
	assert.Equal(t, "Pour quel produit ?", q.Question.MessageText)
	require.Len(t, q.Question.Options, 2)
	assert.Equal(t, "Livret A", q.Question.Options[0].Text)
	assert.Equal(t, "PEL", q.Question.Options[1].Value.Name)

	require.Len(t, q.Children, 1)
	g := d.Node(q.Children[0])
	assert.Equal(t, dialog.KindGoto, g.Kind)
	sw, _ := d.NodeByDialogID("switch_product")
	assert.Equal(t, sw.ID, g.Goto.Target)
	assert.Contains(t, sw.ReferencedBy, g.ID)
}

func TestCompile_GotoNextAndRedirect(t *testing.T) {
	d := compileSample(t)

	open, ok := d.Intent("Savings_Open")
	require.True(t, ok)
	assert.Equal(t, []string{
		"If:Event_Var='Close'",
		"If:Event_Var='Opne'",
		"If:Event_Var has value",
		"DirectAnswer:Vous pouvez ouvrir un livret en agence.",
	}, childStrings(d, open))

	closeBranch := d.Node(open.Children[0])
	assert.Equal(t, []string{"RedirectToLongTail"}, childStrings(d, closeBranch))

	next := d.Node(d.Node(open.Children[2]).Children[0])
	assert.Equal(t, dialog.KindGotoNext, next.Kind)
	assert.Equal(t, open.Children[3], next.Goto.Target)
}

func TestCompile_FederationAllowLists(t *testing.T) {
	d, err := CompileFile("testdata/savings.xml", Options{
		Federation: map[string]map[string][]string{
			"PRODUCT_ENTITY": {
				"particuliers":   {"Livret_A", "PEL", "LDD"},
				"professionnels": {"PEL"},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"particuliers", "professionnels"}, d.Groups())
	rate, _ := d.Intent("Savings_Rate")
	sw := d.Node(rate.Children[0])
	fatHead := d.Node(d.Node(sw.Children[0]).Children[0])
	assert.Equal(t, []string{
		"/federationGroup/particuliers/intent/Savings_Rate/product_entity/Livret_A",
	}, fatHead.Goto.MappingURIs)
}

// ============================================================================
// SWITCH PATTERNS
// ============================================================================

func TestCompile_InlineSwitch(t *testing.T) {
	d, err := compileString(t, minimalDoc(`
      <input>
        <grammar><item>Rate</item></grammar>
        <input>
          <grammar><item>$ (PRODUCT_ENTITY)={Product_Var} (PRODUCT_ENTITY)={Product_Var_2}</item></grammar>
          <action varName="Product_Var" operator="SET_TO">x</action>
          <action varName="Product_Var_2" operator="SET_TO">x</action>
        </input>
        <if id="rate_switch"><cond varName="Product_Var">Livret_A</cond>
          <action varName="Product_Var_2" operator="SET_TO">pel</action>
          <goto ref="fathead"/>
        </if>
        <if><cond varName="Product_Var">PEL</cond><goto ref="longtail"/></if>
        <if><cond varName="Product_Var_2" operator="HAS_VALUE"/><goto ref="fathead"/></if>
        <output><goto ref="start"/></output>
      </input>
      <input>
        <grammar><item>Again</item></grammar>
        <output><goto ref="rate_switch"/></output>
      </input>`))
	require.NoError(t, err)

	intent, ok := d.Intent("Rate")
	require.True(t, ok)
	assert.Equal(t, []string{"SwitchOn:PRODUCT_ENTITY", "DirectAnswer:"}, childStrings(d, intent))
	sw := d.Node(intent.Children[0])
	assert.Equal(t, []string{
		"If:Product_Var='Livret_A'",
		"If:Product_Var='PEL'",
		"SwitchLoopOnce:PRODUCT_ENTITY",
	}, childStrings(d, sw))

	assert.Equal(t, "rate_switch", sw.DialogNodeID)
	assert.Equal(t, []string{"Product_Var_2='pel'"}, assignmentStrings(sw))
	first := d.Node(sw.Children[0])
	assert.Empty(t, first.DialogNodeID)
	assert.Empty(t, first.Assignments)
	assert.Empty(t, messages(d, dialog.DuplicateKey))

	again, ok := d.Intent("Again")
	require.True(t, ok)
	g := d.Node(again.Children[0])
	require.Equal(t, dialog.KindGoto, g.Kind)
	assert.Equal(t, sw.ID, g.Goto.Target)
}

func TestCompile_EntityMatchWithoutExtraction(t *testing.T) {
	d, err := compileString(t, minimalDoc(`
      <input>
        <grammar><item>Rate</item></grammar>
        <input>
          <grammar><item>$ (PRODUCT_ENTITY)={Product_Var}</item></grammar>
        </input>
        <output><goto ref="start"/></output>
      </input>`))
	require.NoError(t, err)

	assert.Contains(t, messages(d, dialog.IncorrectPattern), "Matched entity PRODUCT_ENTITY but did not store its name correctly in Product_Var")
	intent, _ := d.Intent("Rate")
	require.Len(t, intent.Intent.EntityMatches, 1)
	assert.Empty(t, intent.Intent.EntityMatches[0].Variable1)
}

func TestCompile_ActionOperators(t *testing.T) {
	d, err := compileString(t, minimalDoc(`
      <input>
        <grammar><item>Rate</item></grammar>
        <action varName="Product_Var" operator="SET_TO">pel</action>
        <action varName="Product_Var_2" operator="SET_TO">{Product_Var}</action>
        <action varName="Product_Var" operator="SET_AS_USER_INPUT"/>
        <action varName="Product_Var" operator="SET_TO">{PRODUCT_ENTITY:name}</action>
        <action varName="Missing_Var" operator="SET_TO_YES"/>
        <output><goto/></output>
      </input>`))
	require.NoError(t, err)

	intent, _ := d.Intent("Rate")
	assert.Equal(t, []string{"Product_Var='pel'", "Product_Var_2={Product_Var}"}, assignmentStrings(intent))
	assert.Contains(t, messages(d, dialog.Info), "Action with operator SET_AS_USER_INPUT ignored while reading the Xml dialog file")
	assert.Contains(t, messages(d, dialog.InvalidReference), "Variable assignment references undefined variable Missing_Var")
	assert.Contains(t, messages(d, dialog.IncorrectPattern), "Goto node without ref attribute => dead end")
	assert.Contains(t, messages(d, dialog.IncorrectPattern), "Goto pattern without target node reference => dead end")
}

// ============================================================================
// FATAL ERRORS
// ============================================================================

func TestCompile_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing main folder",
			doc:  `<dialog><flow><folder label="Other"/></flow></dialog>`,
			want: `missing <folder label="Main">`,
		},
		{
			name: "unexpected child below input",
			doc:  minimalDoc(`<input><grammar><item>Rate</item></grammar><foo/></input>`),
			want: "Unexpected child element foo below <input>",
		},
		{
			name: "unexpected action operator",
			doc:  minimalDoc(`<input><grammar><item>Rate</item></grammar><action varName="Product_Var" operator="MULTIPLY"/></input>`),
			want: "Unexpected action operator MULTIPLY",
		},
		{
			name: "incoherent entity match",
			doc: minimalDoc(`<input><grammar><item>Rate</item></grammar>
				<input><grammar><item>$ (PRODUCT_ENTITY)={Product_Var} (EVENT_ENTITY)={Product_Var_2}</item></grammar></input></input>`),
			want: "Incoherent EntityMatch pattern",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.doc)
			require.Error(t, err)
			var cerr *CompileError
			require.True(t, errors.As(err, &cerr), "want *CompileError, got %T", err)
			assert.Contains(t, cerr.Msg, tt.want)
		})
	}
}

func TestCompile_Latin1Document(t *testing.T) {
	doc := strings.Replace(minimalDoc(`
      <input>
        <grammar><item>Rate</item><item>quel est le taux d'intérêt</item></grammar>
        <output><goto ref="start"/></output>
      </input>`), `encoding="UTF-8"`, `encoding="ISO-8859-1"`, 1)
	encoded, err := charmap.ISO8859_1.NewEncoder().String(doc)
	require.NoError(t, err)

	d, err := compileString(t, encoded)
	require.NoError(t, err)
	intent, ok := d.Intent("Rate")
	require.True(t, ok)
	assert.Equal(t, []string{"quel est le taux d'intérêt"}, intent.Intent.Questions)
}
