package classifier

import (
	"bufio"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrediction(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Result
	}{
		{"two labels", "__label__Savings_Rate 0.912 __label__Savings_Open 0.0401\n",
			Result{Label1: "Savings_Rate", Proba1: 0.912, Label2: "Savings_Open", Proba2: 0.0401}},
		{"one label", "__label__Savings_Rate 1.00001", Result{Label1: "Savings_Rate", Proba1: 1.00001}},
		{"empty", "", Result{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrediction(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePrediction("__label__A high")
	assert.Error(t, err)
}

func TestResult_IsFatHead(t *testing.T) {
	assert.True(t, Result{Proba1: 0.51}.IsFatHead())
	assert.False(t, Result{Proba1: 0.5}.IsFatHead())
}

// fakeProcess answers every input line with the next canned output line and
// records what it received.
func fakeProcess(t *testing.T, outputs ...string) (*FastText, <-chan string) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	received := make(chan string, len(outputs))

	go func() {
		defer outW.Close()
		sc := bufio.NewScanner(inR)
		for _, out := range outputs {
			if !sc.Scan() {
				return
			}
			received <- sc.Text()
			if _, err := io.WriteString(outW, out+"\n"); err != nil {
				return
			}
		}
		_, _ = io.Copy(io.Discard, inR)
	}()

	return newFastText(inW, outR, nil), received
}

func TestFastText_Predict(t *testing.T) {
	f, received := fakeProcess(t,
		"__label__Savings_Rate 0.87 __label__Savings_Open 0.1",
		"__label__Savings_Open 0.3 __label__Savings_Rate 0.2")

	r, err := f.Predict(context.Background(), "Quel est le taux du Livret A ?")
	require.NoError(t, err)
	assert.Equal(t, "quel est le taux du livret a ", <-received)
	assert.Equal(t, "Savings_Rate", r.Label1)
	assert.True(t, r.IsFatHead())

	r, err = f.Predict(context.Background(), "ouvrir 2 comptes. Merci")
	require.NoError(t, err)
	assert.Equal(t, "ouvrir deux comptes merci", <-received)
	assert.Equal(t, "Savings_Open", r.Label1)
	assert.False(t, r.IsFatHead())

	require.NoError(t, f.Close())
	_, err = f.Predict(context.Background(), "encore")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFastText_PredictCanceled(t *testing.T) {
	f, _ := fakeProcess(t)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Predict(ctx, "taux")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseGeminiResponse(t *testing.T) {
	intents := []string{"Savings_Rate", "Savings_Open"}

	r, err := parseGeminiResponse("```json\n"+
		`{"intents":[{"name":"Savings_Open","confidence":0.2},{"name":"Hallucinated","confidence":0.9},{"name":"Savings_Rate","confidence":0.7}]}`+
		"\n```", intents)
	require.NoError(t, err)
	assert.Equal(t, Result{Label1: "Savings_Rate", Proba1: 0.7, Label2: "Savings_Open", Proba2: 0.2}, r)

	_, err = parseGeminiResponse("not json", intents)
	assert.Error(t, err)
}

func TestNewGemini_NoKey(t *testing.T) {
	g, err := NewGemini(context.Background(), "", "", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, g)
	assert.NoError(t, g.Close())
}
