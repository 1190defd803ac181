package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "results", cfg.ResultDir)
	assert.Equal(t, ClassifierFastText, cfg.Classifier.Type)
	assert.Equal(t, AnswerStoreFile, cfg.AnswerStore.Type)
	assert.Equal(t, "google-key", cfg.APIKey)
	assert.Positive(t, cfg.BatchWorkers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "dialogtool.yaml", `
result_dir: out
classifier:
  type: gemini
  gemini_model: gemini-2.5-pro
answer_store:
  type: postgres
batch_workers: 2
`)
	t.Setenv("DIALOG_BATCH_WORKERS", "6")
	t.Setenv("DB_CONN_STRING", "postgres://db:5432/dialog")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.ResultDir)
	assert.Equal(t, ClassifierGemini, cfg.Classifier.Type)
	assert.Equal(t, "gemini-2.5-pro", cfg.Classifier.GeminiModel)
	assert.Equal(t, "intents", cfg.Classifier.ModelDir)
	assert.Equal(t, AnswerStorePostgres, cfg.AnswerStore.Type)
	assert.Equal(t, 6, cfg.BatchWorkers)
	assert.Equal(t, "postgres://db:5432/dialog", cfg.DBConnString)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("DIALOG_CLASSIFIER", "bert")
	_, err = Load("")
	assert.EqualError(t, err, `unknown classifier type "bert"`)
}

func TestLoadFederation(t *testing.T) {
	path := writeFile(t, "federation.yaml", `
PRODUCT_ENTITY:
  particuliers: [Livret_A, PEL]
  professionnels: [PEL]
`)

	allowLists, err := LoadFederation(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Livret_A", "PEL"}, allowLists["PRODUCT_ENTITY"]["particuliers"])

	none, err := LoadFederation("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
