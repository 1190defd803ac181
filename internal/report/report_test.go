package report

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"dialogtool/internal/batch"
	"dialogtool/internal/compiler"
	"dialogtool/internal/dialog"
	"dialogtool/internal/interpreter"
)

func compileSample(t *testing.T) *dialog.Dialog {
	t.Helper()
	d, err := compiler.CompileFile("../compiler/testdata/savings.xml", compiler.Options{})
	require.NoError(t, err)
	return d
}

func decode(t *testing.T, b []byte) string {
	t.Helper()
	s, err := charmap.ISO8859_1.NewDecoder().String(string(b))
	require.NoError(t, err)
	return s
}

func TestWriteAnswers(t *testing.T) {
	d := compileSample(t)
	var buf bytes.Buffer

	n, err := WriteAnswers(&buf, d)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	fields := strings.Split(strings.TrimSpace(buf.String()), ";")
	require.Len(t, fields, 2)
	assert.Equal(t, "/intent/Savings_Rate/product_entity/Livret_A", fields[1])
}

func TestWriteErrors_Sorted(t *testing.T) {
	d := compileSample(t)
	var buf bytes.Buffer

	require.NoError(t, WriteErrors(&buf, d))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
	assert.Len(t, lines, len(d.Diagnostics))
	assert.IsNonDecreasing(t, lines)
}

func TestWriteInternalTest_Latin1(t *testing.T) {
	res := &interpreter.ExecutionResult{
		QuestionID:   "1",
		QuestionText: "un prêt à taux zéro",
		Values:       map[string]string{"Test_Var": "PTZ", "Test2_Var_2": "x"},
	}
	var buf bytes.Buffer

	require.NoError(t, WriteInternalTest(&buf, []*interpreter.ExecutionResult{res}))

	assert.Equal(t,
		"#num;question;Test_Var;Test_Var_2;Test2_Var;Test2_Var_2\r\n1;un prêt à taux zéro;PTZ;;;x\r\n",
		decode(t, buf.Bytes()))
	assert.Equal(t, byte(0xEA), buf.Bytes()[bytes.IndexByte(buf.Bytes(), 'p')+2])
}

func TestWriteCompareAndDebug(t *testing.T) {
	d := compileSample(t)
	questions := []batch.Question{{ID: "7", Text: "taux du pel", Intent: "Savings_Rate"}}
	results, err := batch.Replay(context.Background(), d, questions, batch.Options{Workers: 1})
	require.NoError(t, err)

	var cmpBuf bytes.Buffer
	require.NoError(t, WriteCompare(&cmpBuf, []batch.Impact{{Question: questions[0], New: results[0], Old: &interpreter.ExecutionResult{}}}))
	assert.True(t, strings.HasPrefix(cmpBuf.String(), "7;taux du pel;[Intent:Savings_Rate"))
	assert.True(t, strings.HasSuffix(cmpBuf.String(), ";\r\n"))

	var dbgBuf bytes.Buffer
	require.NoError(t, WriteDebug(&dbgBuf, results))
	assert.Contains(t, dbgBuf.String(), ";DirectAnswer:Le PEL a un taux fixe chez Banque Exemple.;")
}

func TestWriteCheckSummary(t *testing.T) {
	d := compileSample(t)
	var buf bytes.Buffer

	require.NoError(t, WriteCheckSummary(&buf, d))

	out := buf.String()
	assert.Contains(t, out, "- 3 MatchIntentAndEntities nodes\n")
	assert.Contains(t, out, "- 5 entity values\n")
	assert.Contains(t, out, "- 3 concepts\n")
	assert.Contains(t, out, "10 inconsistencies found :\n")
	assert.Contains(t, out, "- 5 elements never used\n")
}
