package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dialogtool/internal/answerstore"
	"dialogtool/internal/classifier"
	"dialogtool/internal/dialog"
	"dialogtool/internal/interpreter"
)

// maxAnswerText bounds the answer excerpt attached to a reply.
const maxAnswerText = 800

// ErrNoClassifier is returned when a turn gives no intent and no classifier
// is configured.
var ErrNoClassifier = errors.New("no intent given and no classifier configured")

// ReplyKind tells how the bot answers a turn.
type ReplyKind string

const (
	ReplyAnswer   ReplyKind = "answer"
	ReplyQuestion ReplyKind = "question"
	ReplyMessage  ReplyKind = "message"
	ReplyRedirect ReplyKind = "redirect"
	// ReplyLongTail means the classifier was not confident enough to use the dialog.
	ReplyLongTail ReplyKind = "longtail"
	ReplyNone     ReplyKind = "none"
)

// Reply is the bot side of a turn.
type Reply struct {
	Kind           ReplyKind               `json:"kind"`
	Intent         string                  `json:"intent,omitempty"`
	Classification *classifier.Result      `json:"classification,omitempty"`
	Text           string                  `json:"text,omitempty"`
	Options        []string                `json:"options,omitempty"`
	MappingURI     string                  `json:"mapping_uri,omitempty"`
	Answer         *answerstore.AnswerUnit `json:"answer,omitempty"`
	Path           string                  `json:"path,omitempty"`
	Messages       []string                `json:"messages,omitempty"`
}

// Conversation runs turns of a session against a compiled dialog.
// Classifier and Answers are optional.
type Conversation struct {
	Dialog     *dialog.Dialog
	Classifier classifier.Classifier
	Answers    answerstore.Store
	Logger     *zap.Logger
}

func (c *Conversation) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Handle runs one user turn. A pending disambiguation question is answered by
// the text unless intent is given, which starts a new question. Without an
// intent the classifier predicts one.
func (c *Conversation) Handle(ctx context.Context, s *Session, text, intent string) (*Reply, error) {
	s.AddMessage(Message{Role: "user", Content: text, Intent: intent})

	reply := &Reply{}
	var res *interpreter.ExecutionResult
	if q := s.PendingQuestion(); q != nil && intent == "" {
		res = interpreter.ExecuteUserInput(c.Dialog, q, text, s.Last())
	} else {
		if intent == "" {
			if c.Classifier == nil {
				return nil, ErrNoClassifier
			}
			prediction, err := c.Classifier.Predict(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("failed to classify sentence: %w", err)
			}
			reply.Classification = &prediction
			if !prediction.IsFatHead() {
				reply.Kind = ReplyLongTail
				reply.Intent = prediction.Label1
				s.SetLast(nil)
				s.AddMessage(Message{Role: "bot", Intent: reply.Intent, Result: string(reply.Kind)})
				return reply, nil
			}
			intent = prediction.Label1
		}
		res = interpreter.AnalyzeInitialQuestionFor(c.Dialog, s.Group, "", text, intent)
	}
	s.SetLast(res)

	reply.Intent = res.IntentName
	reply.Path = res.String()
	reply.Messages = res.Messages
	if err := c.describe(ctx, reply, res); err != nil {
		return nil, err
	}

	s.AddMessage(Message{
		Role:     "bot",
		Content:  reply.Text,
		Intent:   reply.Intent,
		Result:   string(reply.Kind),
		Metadata: map[string]string{"path": reply.Path, "mapping_uri": reply.MappingURI},
	})
	c.logger().Debug("turn handled",
		zap.String("session", s.SessionID),
		zap.String("intent", reply.Intent),
		zap.String("kind", string(reply.Kind)),
		zap.String("path", reply.Path))
	return reply, nil
}

func (c *Conversation) describe(ctx context.Context, reply *Reply, res *interpreter.ExecutionResult) error {
	final := res.Final()
	switch {
	case final == nil:
		reply.Kind = ReplyNone
	case final.MappingURI != "":
		reply.Kind = ReplyAnswer
		reply.MappingURI = final.MappingURI
		if c.Answers == nil {
			return nil
		}
		unit, err := c.Answers.AnswerUnit(ctx, final.MappingURI)
		if errors.Is(err, answerstore.ErrNotFound) {
			c.logger().Warn("no answer unit for mapping URI", zap.String("uri", final.MappingURI))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get answer content: %w", err)
		}
		reply.Answer = unit
		reply.Text = excerpt(unit.Content.PlainText)
	case final.Node.Kind == dialog.KindDisambiguationQuestion:
		reply.Kind = ReplyQuestion
		reply.Text = final.Node.Question.MessageText
		for _, opt := range final.Node.Question.Options {
			reply.Options = append(reply.Options, opt.Text)
		}
	case final.Node.Kind == dialog.KindRedirectToLongTail, final.Node.Kind == dialog.KindFatHeadAnswers:
		reply.Kind = ReplyRedirect
	case final.Node.Kind == dialog.KindDirectAnswer:
		reply.Kind = ReplyMessage
		reply.Text = final.Node.Goto.MessageText
	default:
		reply.Kind = ReplyNone
	}
	return nil
}

func excerpt(text string) string {
	rs := []rune(text)
	if len(rs) <= maxAnswerText {
		return text
	}
	return string(rs[:maxAnswerText-5]) + " ..."
}
