package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini asks a Gemini model to pick among the intents of a dialog.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	intents []string
	logger  *zap.Logger
}

type geminiResponse struct {
	Intents []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intents"`
}

// NewGemini initializes the Gemini client. If the API key is empty,
// the caller receives a nil Gemini and no error.
func NewGemini(ctx context.Context, apiKey, modelName string, intents []string, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, nil
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt(intents))}}

	return &Gemini{client: client, model: model, intents: intents, logger: logger}, nil
}

func systemPrompt(intents []string) string {
	return `You classify customer questions asked to a bank or insurance chatbot.
Pick the two intents that best match the question, among this closed list only:
` + strings.Join(intents, "\n") + `

Respond ONLY with a single, minified JSON object:
{"intents":[{"name":"<intent>","confidence":<0..1>},{"name":"<intent>","confidence":<0..1>}]}`
}

// Close releases underlying resources.
func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Predict classifies one sentence.
func (g *Gemini) Predict(ctx context.Context, sentence string) (Result, error) {
	if g == nil || g.model == nil {
		return Result{}, fmt.Errorf("gemini classifier is not initialized")
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(sentence))
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("no response from model")
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return Result{}, fmt.Errorf("unexpected response type from model: %T", part)
	}
	g.logger.Debug("gemini raw response", zap.String("response", string(text)))

	return parseGeminiResponse(string(text), g.intents)
}

// parseGeminiResponse keeps the known intents of the answer, best first.
func parseGeminiResponse(text string, intents []string) (Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var resp geminiResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Result{}, fmt.Errorf("failed to parse model JSON response: %w (response was: %s)", err, text)
	}

	candidates := resp.Intents[:0]
	for _, c := range resp.Intents {
		if slices.Contains(intents, c.Name) {
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	var r Result
	if len(candidates) > 0 {
		r.Label1, r.Proba1 = candidates[0].Name, candidates[0].Confidence
	}
	if len(candidates) > 1 {
		r.Label2, r.Proba2 = candidates[1].Name, candidates[1].Confidence
	}
	return r, nil
}
