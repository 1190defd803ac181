// Package classifier predicts the intent of a user sentence.
package classifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// FatHeadThreshold is the probability above which the first label is trusted.
const FatHeadThreshold = 0.5

const labelPrefix = "__label__"

// Classifier predicts the two most likely intents of a sentence.
type Classifier interface {
	Predict(ctx context.Context, sentence string) (Result, error)
	Close() error
}

// Result holds the two best labels and their probabilities.
type Result struct {
	Label1 string  `json:"label1"`
	Proba1 float64 `json:"proba1"`
	Label2 string  `json:"label2,omitempty"`
	Proba2 float64 `json:"proba2,omitempty"`
}

// IsFatHead reports whether the first label is confident enough to answer
// from the dialog.
func (r Result) IsFatHead() bool {
	return r.Proba1 > FatHeadThreshold
}

func (r Result) String() string {
	return fmt.Sprintf("%s (%.2f) / %s (%.2f)", r.Label1, r.Proba1, r.Label2, r.Proba2)
}

// ParsePrediction reads one "predict-prob" output line:
// "__label__A 0.91 __label__B 0.04".
func ParsePrediction(line string) (Result, error) {
	fields := strings.Fields(line)
	var r Result
	if len(fields) >= 2 {
		p, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Result{}, fmt.Errorf("invalid probability %q: %w", fields[1], err)
		}
		r.Label1, r.Proba1 = strings.TrimPrefix(fields[0], labelPrefix), p
	}
	if len(fields) >= 4 {
		p, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return Result{}, fmt.Errorf("invalid probability %q: %w", fields[3], err)
		}
		r.Label2, r.Proba2 = strings.TrimPrefix(fields[2], labelPrefix), p
	}
	return r, nil
}
