package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dialogtool/internal/answerstore"
	"dialogtool/internal/classifier"
	"dialogtool/internal/config"
	"dialogtool/internal/dialog"
	"dialogtool/internal/server"
	"dialogtool/internal/session"
)

func classifyCommand(a *app) *cobra.Command {
	var dialogPath string

	cmd := &cobra.Command{
		Use:   "classify <sentence>...",
		Short: "Print the two most probable intents of each sentence",
		Long: `Print the two most probable intents of each sentence.

The fasttext classifier is used unless the configuration selects gemini, which
needs --dialog to restrict its answers to the intents of a dialog file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var intents []string
			if dialogPath != "" {
				d, err := a.compile(out, dialogPath)
				if err != nil {
					return err
				}
				intents = intentNames(d)
			}

			c, err := a.newClassifier(cmd.Context(), intents)
			if err != nil {
				return err
			}
			if c == nil {
				return errors.New("no intent classifier configured")
			}
			defer c.Close()

			for _, sentence := range args {
				res, err := c.Predict(cmd.Context(), sentence)
				if err != nil {
					return err
				}
				fatHead := "longtail"
				if res.IsFatHead() {
					fatHead = "fathead"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", sentence, res, fatHead)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dialogPath, "dialog", "", "Dialog file listing the intents known to gemini")
	return cmd
}

func demoCommand(a *app) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "demo <dialog.xml>",
		Short: "Chat with the dialog in the terminal",
		Long: `Chat with the dialog in the terminal.

Each question is classified, then interpreted by the dialog. Disambiguation
questions are asked until an answer is found. Prefix a question with
"#Intent_Name " to skip the classifier. Type "exit" to quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, closeFn, err := a.conversation(cmd.Context(), cmd.OutOrStdout(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()
			return runDemo(cmd.Context(), conv, session.NewSession("demo", group), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Federation group of the user")
	return cmd
}

func runDemo(ctx context.Context, conv *session.Conversation, sess *session.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "@ Bonjour, vous pouvez me poser des questions.")
	fmt.Fprintln(out, "@ (puis saisissez \"exit\" pour sortir du programme)")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	prompt := func() bool {
		if sess.PendingQuestion() == nil {
			fmt.Fprintln(out, "@ Quelle est votre question ?")
		}
		fmt.Fprint(out, "> ")
		return scanner.Scan()
	}

	for prompt() {
		text := strings.TrimSpace(scanner.Text())
		fmt.Fprintln(out)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") {
			break
		}

		intent := ""
		if strings.HasPrefix(text, "#") {
			name, rest, _ := strings.Cut(text[1:], " ")
			intent, text = name, strings.TrimSpace(rest)
		}

		reply, err := conv.Handle(ctx, sess, text, intent)
		if errors.Is(err, session.ErrNoClassifier) {
			fmt.Fprintln(out, "@ Aucun classifieur configuré, préfixez la question par #Nom_Intention")
			fmt.Fprintln(out)
			continue
		}
		if err != nil {
			return err
		}
		printReply(out, reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(out, "@ Au revoir.")
	return nil
}

func printReply(out io.Writer, reply *session.Reply) {
	if c := reply.Classification; c != nil {
		if c.IsFatHead() {
			fmt.Fprintf(out, "@ J'ai compris que votre intention est : %s\n", c.Label1)
		} else {
			fmt.Fprintf(out, "@ Je pense que votre intention est %s ou peut-être %s\n", c.Label1, c.Label2)
		}
	}

	switch reply.Kind {
	case session.ReplyLongTail:
		fmt.Fprintln(out, "@ Je n'en suis pas sûr -> je vous redirige vers le mode Recherche ...")
	case session.ReplyAnswer:
		fmt.Fprintln(out, "@ J'ai trouvé une réponse exacte à cette question : ")
		fmt.Fprintf(out, "  %s\n", reply.MappingURI)
		if reply.Answer != nil {
			fmt.Fprintln(out)
			for _, title := range reply.Answer.Content.Title {
				if title != "no-title" {
					fmt.Fprintf(out, "# %s\n", title)
				}
			}
			fmt.Fprintln(out, reply.Text)
		}
	case session.ReplyQuestion:
		fmt.Fprintln(out, "@ Votre question est ambigüe, je dois vous demander en complément : ")
		fmt.Fprintf(out, "  %s\n", reply.Text)
		for _, opt := range reply.Options {
			fmt.Fprintf(out, "  - %s\n", opt)
		}
	case session.ReplyRedirect:
		fmt.Fprintln(out, "@ Dans ce cas de figure, le dialogue vous redirige vers le mode Recherche ...")
	case session.ReplyMessage:
		fmt.Fprintln(out, "@ Je dois afficher le message suivant : ")
		fmt.Fprintf(out, "  %s\n", reply.Text)
	}
	for _, msg := range reply.Messages {
		fmt.Fprintf(out, "! %s\n", msg)
	}
	fmt.Fprintln(out)
}

func serveCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <dialog.xml>",
		Short: "Serve the dialog over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conv, closeFn, err := a.conversation(ctx, cmd.OutOrStdout(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			if addr == "" {
				addr = a.cfg.ServerAddr
			}
			return server.New(conv, session.NewManager(), a.logger).Start(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

// conversation compiles the dialog and opens the configured classifier and
// answer store. The returned function releases them.
func (a *app) conversation(ctx context.Context, out io.Writer, dialogPath string) (*session.Conversation, func(), error) {
	d, err := a.compile(out, dialogPath)
	if err != nil {
		return nil, nil, err
	}
	conv := &session.Conversation{Dialog: d, Logger: a.logger}
	var closers []func()
	closeFn := func() {
		for _, c := range closers {
			c()
		}
	}

	c, err := a.newClassifier(ctx, intentNames(d))
	if err != nil {
		return nil, nil, err
	}
	if c != nil {
		conv.Classifier = c
		closers = append(closers, func() { _ = c.Close() })
	}

	answers, closeAnswers, err := a.newAnswerStore(ctx)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if answers != nil {
		conv.Answers = answers
		closers = append(closers, closeAnswers)
	}
	return conv, closeFn, nil
}

// newClassifier returns nil when the configured backend cannot be started
// without more settings: no fasttext model file or no gemini API key.
func (a *app) newClassifier(ctx context.Context, intents []string) (classifier.Classifier, error) {
	cc := a.cfg.Classifier
	switch cc.Type {
	case config.ClassifierGemini:
		g, err := classifier.NewGemini(ctx, a.cfg.APIKey, cc.GeminiModel, intents, a.logger)
		if err != nil {
			return nil, err
		}
		if g == nil {
			a.logger.Warn("gemini classifier disabled: no API key")
			return nil, nil
		}
		return g, nil
	default:
		if cc.ModelFile == "" {
			a.logger.Warn("fasttext classifier disabled: no model file")
			return nil, nil
		}
		ft, err := classifier.StartFastText(cc.Executable, cc.ModelDir, cc.ModelFile, a.logger)
		if err != nil {
			return nil, err
		}
		return ft, nil
	}
}

// newAnswerStore returns nil when the answer file does not exist.
func (a *app) newAnswerStore(ctx context.Context) (answerstore.Store, func(), error) {
	switch a.cfg.AnswerStore.Type {
	case config.AnswerStorePostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", a.cfg.DBConnString)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to answer store: %w", err)
		}
		return answerstore.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		path := a.cfg.AnswerStore.File
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("answer file not found, answers will have no content", zap.String("file", path))
			return nil, nil, nil
		}
		s, err := answerstore.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("answer units loaded", zap.Int("count", len(s.Units())))
		return s, func() {}, nil
	}
}

func intentNames(d *dialog.Dialog) []string {
	nodes := d.IntentNodes()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Intent.Name)
	}
	return names
}
