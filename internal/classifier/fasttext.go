package classifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dialogtool/internal/textnorm"
)

// ErrClosed is returned by Predict after Close.
var ErrClosed = errors.New("sentence classifier was already closed")

// FastText keeps a fastText "predict-prob" process running and sends it one
// sentence per line.
type FastText struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *zap.Logger
}

// StartFastText launches executable in modelDir on modelFile.
func StartFastText(executable, modelDir, modelFile string, logger *zap.Logger) (*FastText, error) {
	cmd := exec.Command(executable, "predict-prob", modelFile, "-", "2")
	cmd.Dir = modelDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", executable, err)
	}

	f := newFastText(stdin, stdout, logger)
	f.cmd = cmd
	f.logger.Info("fastText classifier started",
		zap.String("model", modelFile), zap.Int("pid", cmd.Process.Pid))
	return f, nil
}

func newFastText(stdin io.WriteCloser, stdout io.Reader, logger *zap.Logger) *FastText {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FastText{stdin: stdin, stdout: bufio.NewReader(stdout), logger: logger}
}

// Predict classifies one sentence. Calls are serialized on the process.
func (f *FastText) Predict(ctx context.Context, sentence string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stdin == nil {
		return Result{}, ErrClosed
	}

	line := strings.ReplaceAll(textnorm.PreprocessSentence(sentence), "\n", " ")
	if _, err := io.WriteString(f.stdin, line+"\n"); err != nil {
		return Result{}, fmt.Errorf("failed to send sentence to classifier: %w", err)
	}
	out, err := f.stdout.ReadString('\n')
	if err != nil && out == "" {
		return Result{}, fmt.Errorf("failed to read classifier output: %w", err)
	}
	r, err := ParsePrediction(out)
	if err != nil {
		return Result{}, err
	}
	f.logger.Debug("sentence classified", zap.String("sentence", line), zap.Stringer("result", r))
	return r, nil
}

// Close stops the process.
func (f *FastText) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stdin == nil {
		return nil
	}
	err := f.stdin.Close()
	f.stdin = nil
	if f.cmd != nil {
		if werr := f.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
