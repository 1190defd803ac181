package animate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"dialogtool/internal/session"
)

// Runner executes animation scenarios.
type Runner struct {
	config     RunConfig
	httpClient *http.Client
	output     io.Writer
	input      *bufio.Reader
}

// NewRunner creates a new scenario runner.
func NewRunner(config RunConfig) *Runner {
	if config.ServerURL == "" {
		config.ServerURL = "http://127.0.0.1:8080"
	}
	config.ServerURL = strings.TrimSuffix(config.ServerURL, "/")
	if config.Speed == 0 {
		config.Speed = 1.0
	}

	return &Runner{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		output:     os.Stdout,
		input:      bufio.NewReader(os.Stdin),
	}
}

// SetOutput sets the output writer (for testing).
func (r *Runner) SetOutput(w io.Writer) {
	r.output = w
}

// Run executes a scenario and returns results.
func (r *Runner) Run(ctx context.Context, scenario Scenario) (*ScenarioResult, error) {
	result := &ScenarioResult{
		ScenarioName: scenario.Name,
		StartTime:    time.Now(),
		TotalSteps:   len(scenario.Steps),
	}

	r.printHeader(scenario)

	sessionID, err := r.createSession(ctx, scenario.Group)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.EndTime = time.Now()
		return result, result.Error
	}
	result.SessionID = sessionID
	r.printf("\n%s Session: %s\n\n", r.icon("session"), sessionID)

	for i, step := range scenario.Steps {
		if ctx.Err() != nil {
			break
		}
		stepResult := r.runStep(ctx, sessionID, i, step, scenario)
		result.Steps = append(result.Steps, stepResult)

		if stepResult.Passed() {
			result.PassedSteps++
		} else {
			result.FailedSteps++
			if r.config.StopOnError {
				r.printf("\n%s Stopping on error\n", r.icon("error"))
				break
			}
		}

		if i < len(scenario.Steps)-1 {
			r.pauseAfterStep(ctx, step, scenario)
		}
	}

	result.EndTime = time.Now()
	result.TotalDuration = result.EndTime.Sub(result.StartTime)
	result.Success = result.FailedSteps == 0 && result.PassedSteps == result.TotalSteps

	if !scenario.KeepSession {
		if err := r.deleteSession(context.WithoutCancel(ctx), sessionID); err != nil {
			r.printf("%s Failed to delete session %s: %v\n", r.icon("warn"), sessionID, err)
		}
	}

	r.printSummary(result)
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, sessionID string, index int, step Step, scenario Scenario) StepResult {
	result := StepResult{
		StepIndex: index,
		Prompt:    step.Prompt,
		StartTime: time.Now(),
	}

	r.printf("%s Step %d: ", r.icon("step"), index+1)
	r.typeText(ctx, step.Prompt, step, scenario)
	r.printf("\n")

	reply, err := r.sendMessage(ctx, sessionID, step.Prompt, step.Intent)
	result.EndTime = time.Now()
	if err != nil {
		result.Error = err
		r.printf("  %s Error: %v\n", r.icon("error"), err)
		return result
	}
	result.Reply = reply

	r.printReply(reply)
	result.Failures = check(step, reply)
	for _, f := range result.Failures {
		r.printf("  %s %s\n", r.icon("warn"), f)
	}

	if step.WaitForKey || r.config.Interactive {
		r.printf("\n  Press Enter to continue...")
		_, _ = r.input.ReadString('\n')
	}
	return result
}

func check(step Step, reply *session.Reply) []string {
	var failures []string
	if step.ExpectKind != "" && reply.Kind != step.ExpectKind {
		failures = append(failures, fmt.Sprintf("expected %s reply, got %s", step.ExpectKind, reply.Kind))
	}
	if step.ExpectText != "" && !strings.Contains(reply.Text, step.ExpectText) {
		failures = append(failures, fmt.Sprintf("expected text containing %q", step.ExpectText))
	}
	if step.ExpectURI != "" && reply.MappingURI != step.ExpectURI {
		failures = append(failures, fmt.Sprintf("expected mapping URI %s, got %q", step.ExpectURI, reply.MappingURI))
	}
	return failures
}

// API calls

func (r *Runner) createSession(ctx context.Context, group string) (string, error) {
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := r.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"group": group}, &result); err != nil {
		return "", err
	}
	if result.SessionID == "" {
		return "", fmt.Errorf("server returned no session id")
	}
	return result.SessionID, nil
}

func (r *Runner) sendMessage(ctx context.Context, sessionID, text, intent string) (*session.Reply, error) {
	var reply session.Reply
	body := map[string]string{"text": text, "intent": intent}
	if err := r.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/messages", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (r *Runner) deleteSession(ctx context.Context, sessionID string) error {
	return r.do(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil)
}

func (r *Runner) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.config.ServerURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

// Output helpers

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}

func (r *Runner) printHeader(scenario Scenario) {
	r.printf("\n%s\n", strings.Repeat("=", 60))
	r.printf("%s %s\n", r.icon("scenario"), scenario.Name)
	if scenario.Description != "" {
		r.printf("   %s\n", scenario.Description)
	}
	r.printf("%s\n", strings.Repeat("=", 60))
}

func (r *Runner) printReply(reply *session.Reply) {
	switch reply.Kind {
	case session.ReplyAnswer:
		r.printf("  %s Answer: %s\n", r.icon("bot"), reply.MappingURI)
		if reply.Text != "" {
			r.printf("    %s\n", truncate(reply.Text, 100))
		}
	case session.ReplyQuestion:
		r.printf("  %s Question: %s\n", r.icon("bot"), reply.Text)
		for _, opt := range reply.Options {
			r.printf("    - %s\n", opt)
		}
	case session.ReplyMessage:
		r.printf("  %s Message: %s\n", r.icon("bot"), reply.Text)
	default:
		r.printf("  %s %s\n", r.icon("bot"), reply.Kind)
	}
	if r.config.Verbose {
		r.printf("  %s %s\n", r.color("dim")+"path:"+r.color("reset"), reply.Path)
		for _, msg := range reply.Messages {
			r.printf("  %s %s\n", r.icon("warn"), msg)
		}
	}
}

func (r *Runner) printSummary(result *ScenarioResult) {
	r.printf("\n%s\n", strings.Repeat("-", 60))
	r.printf("%s Summary\n", r.icon("summary"))
	r.printf("   Duration: %s\n", result.TotalDuration.Round(time.Millisecond))
	r.printf("   Steps:    %d total, %d passed, %d failed\n",
		result.TotalSteps, result.PassedSteps, result.FailedSteps)

	if result.Success {
		r.printf("   Result:   %s PASSED\n", r.icon("check"))
	} else {
		r.printf("   Result:   %s FAILED\n", r.icon("error"))
	}
	r.printf("%s\n\n", strings.Repeat("-", 60))
}

func (r *Runner) typeText(ctx context.Context, text string, step Step, scenario Scenario) {
	speed := scenario.TypingSpeedMs
	if step.TypingSpeedMs != nil {
		speed = *step.TypingSpeedMs
	}

	if speed == 0 || r.config.Speed > 10 {
		r.printf("%s", text)
		return
	}

	delay := time.Duration(float64(speed)/r.config.Speed) * time.Millisecond
	for _, ch := range text {
		r.printf("%c", ch)
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (r *Runner) pauseAfterStep(ctx context.Context, step Step, scenario Scenario) {
	pause := scenario.PauseAfterMs
	if step.PauseAfterMs != nil {
		pause = *step.PauseAfterMs
	}
	if pause > 0 {
		sleep(ctx, time.Duration(float64(pause)/r.config.Speed)*time.Millisecond)
	}
}

// sleep waits for d unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) icon(name string) string {
	if r.config.NoColor {
		return iconPlain[name]
	}
	return iconColor[name]
}

func (r *Runner) color(name string) string {
	if r.config.NoColor {
		return ""
	}
	return colors[name]
}

// Icons and colors

var iconColor = map[string]string{
	"scenario": "\033[1;36m>\033[0m",
	"session":  "\033[1;34m*\033[0m",
	"step":     "\033[1;33m->\033[0m",
	"bot":      "\033[1;35m@\033[0m",
	"check":    "\033[1;32m[OK]\033[0m",
	"error":    "\033[1;31m[ERR]\033[0m",
	"warn":     "\033[1;33m[WARN]\033[0m",
	"summary":  "\033[1;36m[SUM]\033[0m",
}

var iconPlain = map[string]string{
	"scenario": ">",
	"session":  "*",
	"step":     "->",
	"bot":      "@",
	"check":    "[OK]",
	"error":    "[ERR]",
	"warn":     "[WARN]",
	"summary":  "[SUM]",
}

var colors = map[string]string{
	"dim":   "\033[2m",
	"reset": "\033[0m",
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-3]) + "..."
}
