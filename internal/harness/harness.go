// Package harness runs conversation scenarios against a compiled dialog.
package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"dialogtool/internal/session"
)

// Suite represents a scenario suite loaded from YAML.
type Suite struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Group is the default federation group of the cases.
	Group string `yaml:"group"`
	Cases []Case `yaml:"cases"`
}

// Case is one conversation: a first question, then the answers given to the
// disambiguation questions it raises.
type Case struct {
	Name       string      `yaml:"name"`
	Question   string      `yaml:"question"`
	Intent     string      `yaml:"intent"`
	Group      string      `yaml:"group"`
	Answers    []string    `yaml:"answers"`
	Expect     Expectation `yaml:"expect"`
	Skip       bool        `yaml:"skip"`
	SkipReason string      `yaml:"skip_reason"`
}

// Expectation defines what we expect from the last turn of a case.
type Expectation struct {
	Kind         session.ReplyKind `yaml:"kind"`
	MappingURI   string            `yaml:"mapping_uri"`
	TextContains string            `yaml:"text_contains"`
	PathContains string            `yaml:"path_contains"`
	NoMessages   bool              `yaml:"no_messages"`
	MessageCount *int              `yaml:"message_count"`
	AnswerUnitID string            `yaml:"answer_unit_id"`
	MaxTurns     int               `yaml:"max_turns"`
}

// Result captures one case execution.
type Result struct {
	Suite      string           `json:"suite,omitempty"`
	Case       string           `json:"case"`
	Passed     bool             `json:"passed"`
	Duration   time.Duration    `json:"duration"`
	Error      string           `json:"error,omitempty"`
	Replies    []*session.Reply `json:"replies,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
	SkipReason string           `json:"skip_reason,omitempty"`
}

// SuiteResult aggregates results for a suite.
type SuiteResult struct {
	Name       string        `json:"name"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
	Results    []Result      `json:"results"`
	SessionIDs []uuid.UUID   `json:"session_ids"`
}

// Runner executes suites through a conversation.
type Runner struct {
	conv     *session.Conversation
	sessions *session.Manager
	verbose  bool
	logger   *zap.Logger
}

// NewRunner creates a new scenario runner.
func NewRunner(conv *session.Conversation) *Runner {
	return &Runner{conv: conv, sessions: session.NewManager(), logger: zap.NewNop()}
}

// WithVerbose enables verbose output.
func (r *Runner) WithVerbose(v bool) *Runner {
	r.verbose = v
	return r
}

// WithLogger sets the logger used for verbose output.
func (r *Runner) WithLogger(l *zap.Logger) *Runner {
	if l != nil {
		r.logger = l
	}
	return r
}

// LoadSuite reads a YAML suite file.
func LoadSuite(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open suite: %w", err)
	}
	defer f.Close()
	return DecodeSuite(f)
}

// DecodeSuite reads a YAML suite.
func DecodeSuite(r io.Reader) (*Suite, error) {
	var s Suite
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode suite: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("decode suite: missing name")
	}
	for i, c := range s.Cases {
		if c.Name == "" || c.Question == "" {
			return nil, fmt.Errorf("decode suite: case %d needs a name and a question", i+1)
		}
	}
	return &s, nil
}

// Run executes a suite and returns results.
func (r *Runner) Run(ctx context.Context, suite Suite) (*SuiteResult, error) {
	start := time.Now()
	result := &SuiteResult{Name: suite.Name}

	for _, tc := range suite.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tc.Group == "" {
			tc.Group = suite.Group
		}
		tcResult := r.runCase(ctx, tc)
		tcResult.Suite = suite.Name
		result.Results = append(result.Results, tcResult)
		if tcResult.Skipped {
			result.Skipped++
		} else if tcResult.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	for _, id := range r.sessions.List() {
		if u, err := uuid.Parse(id); err == nil {
			result.SessionIDs = append(result.SessionIDs, u)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Cleanup removes the sessions created by the runs.
func (r *Runner) Cleanup(ids []uuid.UUID) error {
	for _, id := range ids {
		if err := r.sessions.Delete(id.String()); err != nil {
			return fmt.Errorf("cleanup session %s: %w", id, err)
		}
	}
	return nil
}

func (r *Runner) runCase(ctx context.Context, tc Case) Result {
	start := time.Now()
	result := Result{Case: tc.Name}

	if tc.Skip {
		result.Skipped = true
		result.SkipReason = tc.SkipReason
		return result
	}

	sess := r.sessions.Create(tc.Group)
	reply, err := r.conv.Handle(ctx, sess, tc.Question, tc.Intent)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	result.Replies = append(result.Replies, reply)

	for _, answer := range tc.Answers {
		if reply.Kind != session.ReplyQuestion {
			result.Error = fmt.Sprintf("answer %q given but the dialog did not ask a question (got %s)", answer, reply.Kind)
			result.Duration = time.Since(start)
			return result
		}
		reply, err = r.conv.Handle(ctx, sess, answer, "")
		if err != nil {
			result.Error = err.Error()
			result.Duration = time.Since(start)
			return result
		}
		result.Replies = append(result.Replies, reply)
	}
	result.Duration = time.Since(start)

	if r.verbose {
		r.logger.Info("case executed",
			zap.String("case", tc.Name),
			zap.String("kind", string(reply.Kind)),
			zap.String("path", reply.Path))
	}

	if err := check(tc.Expect, reply, len(result.Replies)); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Passed = true
	return result
}

func check(expect Expectation, reply *session.Reply, turns int) error {
	if expect.Kind != "" && reply.Kind != expect.Kind {
		return fmt.Errorf("expected kind=%s, got %s (%s)", expect.Kind, reply.Kind, reply.Path)
	}
	if expect.MappingURI != "" && reply.MappingURI != expect.MappingURI {
		return fmt.Errorf("expected mapping URI %s, got %q", expect.MappingURI, reply.MappingURI)
	}
	if expect.TextContains != "" && !strings.Contains(reply.Text, expect.TextContains) {
		return fmt.Errorf("expected text containing %q, got %q", expect.TextContains, reply.Text)
	}
	if expect.PathContains != "" && !strings.Contains(reply.Path, expect.PathContains) {
		return fmt.Errorf("expected path containing %q, got %q", expect.PathContains, reply.Path)
	}
	if expect.NoMessages && len(reply.Messages) > 0 {
		return fmt.Errorf("expected no interpreter messages, got %v", reply.Messages)
	}
	if expect.MessageCount != nil && len(reply.Messages) != *expect.MessageCount {
		return fmt.Errorf("expected %d interpreter messages, got %d", *expect.MessageCount, len(reply.Messages))
	}
	if expect.AnswerUnitID != "" && (reply.Answer == nil || reply.Answer.AnswerUnitID != expect.AnswerUnitID) {
		return fmt.Errorf("expected answer unit %s", expect.AnswerUnitID)
	}
	if expect.MaxTurns > 0 && turns > expect.MaxTurns {
		return fmt.Errorf("expected at most %d turns, got %d", expect.MaxTurns, turns)
	}
	return nil
}
