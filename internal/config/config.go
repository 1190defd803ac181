package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Classifier backends.
const (
	ClassifierFastText = "fasttext"
	ClassifierGemini   = "gemini"
)

// Answer store backends.
const (
	AnswerStoreFile     = "file"
	AnswerStorePostgres = "postgres"
)

// Config holds the settings shared by every command.
type Config struct {
	ResultDir      string            `yaml:"result_dir"`
	FederationFile string            `yaml:"federation_file"`
	Classifier     ClassifierConfig  `yaml:"classifier"`
	AnswerStore    AnswerStoreConfig `yaml:"answer_store"`
	DBConnString   string            `yaml:"db_conn_string"`
	BatchWorkers   int               `yaml:"batch_workers"`
	ServerAddr     string            `yaml:"server_addr"`

	// APIKey is only read from the environment.
	APIKey string `yaml:"-"`
}

type ClassifierConfig struct {
	Type        string `yaml:"type"`
	Executable  string `yaml:"executable"`
	ModelDir    string `yaml:"model_dir"`
	ModelFile   string `yaml:"model_file"`
	GeminiModel string `yaml:"gemini_model"`
}

type AnswerStoreConfig struct {
	Type string `yaml:"type"`
	File string `yaml:"file"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		ResultDir: "results",
		Classifier: ClassifierConfig{
			Type:       ClassifierFastText,
			Executable: "fasttext",
			ModelDir:   "intents",
		},
		AnswerStore: AnswerStoreConfig{
			Type: AnswerStoreFile,
			File: "answers.json",
		},
		DBConnString: "postgres://localhost:5432/postgres?sslmode=disable",
		BatchWorkers: runtime.NumCPU(),
		ServerAddr:   ":8080",
	}
}

// LoadEnv loads a .env file of the working directory when there is one.
func LoadEnv() bool {
	return godotenv.Load() == nil
}

// Load reads the optional YAML file at path over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.ResultDir = getEnvString("DIALOG_RESULT_DIR", c.ResultDir)
	c.FederationFile = getEnvString("DIALOG_FEDERATION_FILE", c.FederationFile)
	c.Classifier.Type = strings.ToLower(getEnvString("DIALOG_CLASSIFIER", c.Classifier.Type))
	c.Classifier.Executable = getEnvString("FASTTEXT_EXECUTABLE", c.Classifier.Executable)
	c.Classifier.ModelDir = getEnvString("FASTTEXT_MODEL_DIR", c.Classifier.ModelDir)
	c.Classifier.ModelFile = getEnvString("FASTTEXT_MODEL_FILE", c.Classifier.ModelFile)
	c.Classifier.GeminiModel = getEnvString("GEMINI_MODEL", c.Classifier.GeminiModel)
	c.AnswerStore.Type = strings.ToLower(getEnvString("DIALOG_ANSWER_STORE", c.AnswerStore.Type))
	c.AnswerStore.File = getEnvString("DIALOG_ANSWER_FILE", c.AnswerStore.File)
	c.DBConnString = getEnvString("DB_CONN_STRING", c.DBConnString)
	c.BatchWorkers = getEnvInt("DIALOG_BATCH_WORKERS", c.BatchWorkers)
	c.ServerAddr = getEnvString("DIALOG_SERVER_ADDR", c.ServerAddr)

	c.APIKey = os.Getenv("GEMINI_API_KEY")
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
}

// Validate checks the backend names.
func (c *Config) Validate() error {
	switch c.Classifier.Type {
	case ClassifierFastText, ClassifierGemini:
	default:
		return fmt.Errorf("unknown classifier type %q", c.Classifier.Type)
	}
	switch c.AnswerStore.Type {
	case AnswerStoreFile, AnswerStorePostgres:
	default:
		return fmt.Errorf("unknown answer store type %q", c.AnswerStore.Type)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("batch workers must be positive, got %d", c.BatchWorkers)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// LoadFederation reads the federation allow-lists: entity name, then
// federation group, then the entity value names allowed in that group.
func LoadFederation(path string) (map[string]map[string][]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read federation file: %w", err)
	}
	var allowLists map[string]map[string][]string
	if err := yaml.Unmarshal(data, &allowLists); err != nil {
		return nil, fmt.Errorf("failed to parse federation file: %w", err)
	}
	return allowLists, nil
}
