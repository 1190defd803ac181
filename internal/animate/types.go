// Package animate plays scripted conversations against a running dialog server,
// typing each user turn as a live demo would.
package animate

import (
	"time"

	"dialogtool/internal/session"
)

// Scenario defines an animated demo sequence.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Group is the federation group of the demo session.
	Group string `yaml:"group,omitempty"`

	// Timing defaults (can be overridden per step)
	TypingSpeedMs int `yaml:"typing_speed_ms,omitempty"` // Simulated typing speed (0 = instant)
	PauseAfterMs  int `yaml:"pause_after_ms,omitempty"`  // Default pause after each step

	// Keep the session on the server after the run
	KeepSession bool `yaml:"keep_session,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one user turn of the scenario.
type Step struct {
	Prompt string `yaml:"prompt"`

	// Intent skips the server side classifier.
	Intent string `yaml:"intent,omitempty"`

	// Optional checks of the bot reply
	ExpectKind session.ReplyKind `yaml:"expect_kind,omitempty"`
	ExpectText string            `yaml:"expect_text,omitempty"`
	ExpectURI  string            `yaml:"expect_uri,omitempty"`

	// Timing overrides
	PauseAfterMs  *int `yaml:"pause_after_ms,omitempty"`
	TypingSpeedMs *int `yaml:"typing_speed_ms,omitempty"`

	WaitForKey bool `yaml:"wait_for_key,omitempty"`
}

// RunConfig controls how the scenario is executed.
type RunConfig struct {
	ServerURL string  // dialogtool serve URL (default: http://127.0.0.1:8080)
	Speed     float64 // Speed multiplier (1.0 = normal, 2.0 = 2x faster)

	Verbose     bool // Show interpreter paths
	NoColor     bool
	Interactive bool // Pause for keypress between steps
	StopOnError bool
}

// StepResult captures the outcome of a single step.
type StepResult struct {
	StepIndex int
	Prompt    string
	StartTime time.Time
	EndTime   time.Time

	Reply *session.Reply

	// Mismatches between the reply and the step expectations
	Failures []string

	Error error
}

// Passed reports whether the step ran and met its expectations.
func (r StepResult) Passed() bool {
	return r.Error == nil && len(r.Failures) == 0
}

// ScenarioResult summarizes the full run.
type ScenarioResult struct {
	ScenarioName string
	SessionID    string
	StartTime    time.Time
	EndTime      time.Time
	Steps        []StepResult

	TotalSteps    int
	PassedSteps   int
	FailedSteps   int
	TotalDuration time.Duration

	Success bool
	Error   error
}
