package batch

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/encoding/charmap"

	"dialogtool/internal/compiler"
	"dialogtool/internal/dialog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const samplePath = "../compiler/testdata/savings.xml"

func compileVersions(t *testing.T) (newDialog, oldDialog *dialog.Dialog) {
	t.Helper()
	raw, err := os.ReadFile(samplePath)
	require.NoError(t, err)

	oldDialog, err = compiler.Compile(strings.NewReader(string(raw)), "v1.xml", compiler.Options{})
	require.NoError(t, err)
	changed := strings.Replace(string(raw), "Le PEL a un taux fixe", "Le PEL a un taux garanti", 1)
	newDialog, err = compiler.Compile(strings.NewReader(changed), "v2.xml", compiler.Options{})
	require.NoError(t, err)
	return newDialog, oldDialog
}

func TestReadQuestions(t *testing.T) {
	src := "1;quel est le taux du livret A;Savings_Rate\n2;ouvrir un livret épargne;Savings_Open \n\n"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(src)
	require.NoError(t, err)

	questions, err := ReadQuestions(strings.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, []Question{
		{ID: "1", Text: "quel est le taux du livret A", Intent: "Savings_Rate"},
		{ID: "2", Text: "ouvrir un livret épargne", Intent: "Savings_Open"},
	}, questions)
}

func TestReadQuestions_MissingColumn(t *testing.T) {
	_, err := ReadQuestions(strings.NewReader("1;only text\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestCompare(t *testing.T) {
	newDialog, oldDialog := compileVersions(t)
	questions := []Question{
		{ID: "1", Text: "taux du Livret A", Intent: "Savings_Rate"},
		{ID: "2", Text: "taux du pel", Intent: "Savings_Rate"},
		{ID: "3", Text: "fermer mon livret", Intent: "Savings_Open"},
		{ID: "4", Text: "le taux du ldd et du pel", Intent: "Savings_Rate"},
	}

	impacts, err := Compare(context.Background(), newDialog, oldDialog, questions, Options{Workers: 2})
	require.NoError(t, err)

	require.Len(t, impacts, 2)
	assert.Equal(t, "2", impacts[0].Question.ID)
	assert.Equal(t, "4", impacts[1].Question.ID)
	assert.Equal(t, "DirectAnswer:Le PEL a un taux garanti chez Banque Exemple.", impacts[0].New.Final().String())
	assert.Equal(t, "DirectAnswer:Le PEL a un taux fixe chez Banque Exemple.", impacts[0].Old.Final().String())
}

func TestReplay_KeepsInputOrder(t *testing.T) {
	d, _ := compileVersions(t)
	questions := make([]Question, 0, 40)
	for i := 0; i < 20; i++ {
		questions = append(questions,
			Question{ID: "rate", Text: "taux du Livret A", Intent: "Savings_Rate"},
			Question{ID: "open", Text: "ouvrir un livret", Intent: "Savings_Open"})
	}

	results, err := Replay(context.Background(), d, questions, Options{Workers: 4})
	require.NoError(t, err)
	require.Len(t, results, len(questions))
	for i, res := range results {
		assert.Equal(t, questions[i].ID, res.QuestionID)
	}
}

func TestReplay_Canceled(t *testing.T) {
	d, _ := compileVersions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Replay(ctx, d, []Question{{ID: "1", Text: "taux", Intent: "Savings_Rate"}}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayOptions(t *testing.T) {
	_, d := compileVersions(t)

	results, err := ReplayOptions(context.Background(), d, Options{Workers: 2})
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, "Savings_Rate", res.IntentName)
		assert.Equal(t, "Pour quel produit ?", res.QuestionText)
		require.NotNil(t, res.Option)
	}
	assert.Equal(t, "DirectAnswer:Le PEL a un taux fixe chez Banque Exemple.", results[1].Final().String())
}
