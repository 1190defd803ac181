// Package batch runs a compiled dialog over a whole set of annotated questions,
// either to replay it or to compare two versions of the same dialog.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"dialogtool/internal/dialog"
	"dialogtool/internal/interpreter"
)

// progressEvery is the number of questions between two progress log lines.
const progressEvery = 500

// Question is one annotated test question.
type Question struct {
	ID     string
	Text   string
	Intent string
}

// Impact is a question whose final answer differs between two dialog versions.
type Impact struct {
	Question Question
	New      *interpreter.ExecutionResult
	Old      *interpreter.ExecutionResult
}

// Options tune a batch run.
type Options struct {
	// Workers bounds the number of questions analyzed concurrently.
	// Zero means one worker per CPU.
	Workers int
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// ReadQuestions parses "id;text;intent" rows from an ISO-8859-1 file.
func ReadQuestions(r io.Reader) ([]Question, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var questions []Question
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read questions: %w", err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 3 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("failed to read questions: line %d: expected id;text;intent, got %d columns", line, len(record))
		}
		questions = append(questions, Question{ID: record[0], Text: record[1], Intent: strings.TrimSpace(record[2])})
	}
	return questions, nil
}

// run calls fn for every index below count on a bounded pool of workers. fn
// writes its own output slot, so results keep the input order.
func run(ctx context.Context, count int, opts Options, fn func(i int)) error {
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range count {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			if n := done.Add(1); n%progressEvery == 0 {
				opts.Logger.Info("test set questions analyzed", zap.Int64("count", n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

// Replay runs the first turn of every question against d.
func Replay(ctx context.Context, d *dialog.Dialog, questions []Question, opts Options) ([]*interpreter.ExecutionResult, error) {
	opts = opts.withDefaults()
	results := make([]*interpreter.ExecutionResult, len(questions))
	err := run(ctx, len(questions), opts, func(i int) {
		q := questions[i]
		results[i] = interpreter.AnalyzeInitialQuestion(d, q.ID, q.Text, q.Intent)
	})
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("replay completed", zap.Int("questions", len(questions)))
	return results, nil
}

type optionJob struct {
	question *dialog.Node
	option   *dialog.DisambiguationOption
	intent   string
}

// ReplayOptions answers every disambiguation question of d with each of its
// options in turn. Results follow the dialog tree order.
func ReplayOptions(ctx context.Context, d *dialog.Dialog, opts Options) ([]*interpreter.ExecutionResult, error) {
	opts = opts.withDefaults()
	var (
		jobs   []optionJob
		intent string
	)
	d.Walk(func(n *dialog.Node) bool {
		switch n.Kind {
		case dialog.KindIntent:
			intent = n.Intent.Name
		case dialog.KindDisambiguationQuestion:
			for _, opt := range n.Question.Options {
				jobs = append(jobs, optionJob{question: n, option: opt, intent: intent})
			}
		}
		return true
	})

	results := make([]*interpreter.ExecutionResult, len(jobs))
	err := run(ctx, len(jobs), opts, func(i int) {
		j := jobs[i]
		results[i] = interpreter.AnalyzeDisambiguationOption(d, j.question, j.option, j.intent)
	})
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("disambiguation options replayed", zap.Int("options", len(jobs)))
	return results, nil
}

// Compare runs every question against both dialogs and returns, in input order,
// the questions whose final answers differ.
func Compare(ctx context.Context, newDialog, oldDialog *dialog.Dialog, questions []Question, opts Options) ([]Impact, error) {
	opts = opts.withDefaults()
	impacts := make([]*Impact, len(questions))
	err := run(ctx, len(questions), opts, func(i int) {
		q := questions[i]
		newResult := interpreter.AnalyzeInitialQuestion(newDialog, q.ID, q.Text, q.Intent)
		oldResult := interpreter.AnalyzeInitialQuestion(oldDialog, q.ID, q.Text, q.Intent)
		if !newResult.ReturnsSameResultAs(oldResult) {
			impacts[i] = &Impact{Question: q, New: newResult, Old: oldResult}
		}
	})
	if err != nil {
		return nil, err
	}

	var out []Impact
	for _, impact := range impacts {
		if impact != nil {
			out = append(out, *impact)
		}
	}
	opts.Logger.Info("comparison completed",
		zap.Int("questions", len(questions)),
		zap.Int("impacts", len(out)))
	return out, nil
}
