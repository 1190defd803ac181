package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dialogtool/internal/batch"
	"dialogtool/internal/dialog"
	"dialogtool/internal/report"
	"dialogtool/internal/store"
)

// testsIntent is the intent whose sample questions exercise the entity matcher.
const testsIntent = "TESTS"

func checkCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check <dialog.xml>",
		Short: "Check dialog file consistency",
		Long: `Check dialog file consistency.

Prints the dialog metrics and the number of inconsistencies per category, then
writes every inconsistency to <result-dir>/<dialog>.errors.csv.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Check dialog file consistency :")
			fmt.Fprintln(out)

			d, err := a.compile(out, args[0])
			if err != nil {
				return err
			}
			if err := report.WriteCheckSummary(out, d); err != nil {
				return err
			}
			fmt.Fprintln(out)

			if _, err := a.writeResult(out, baseName(args[0])+".errors.csv", func(w io.Writer) error {
				return report.WriteErrors(w, d)
			}); err != nil {
				return err
			}

			if strict && len(d.Diagnostics) > 0 {
				return fmt.Errorf("%d inconsistencies found", len(d.Diagnostics))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the dialog has inconsistencies")
	return cmd
}

func answersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "answers <dialog.xml>",
		Short: "Extract the answers mapping URIs of a dialog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Generate answers mapping URIs :")
			fmt.Fprintln(out)

			d, err := a.compile(out, args[0])
			if err != nil {
				return err
			}

			var count int
			if _, err := a.writeResult(out, baseName(args[0])+".answers.csv", func(w io.Writer) error {
				var writeErr error
				count, writeErr = report.WriteAnswers(w, d)
				return writeErr
			}); err != nil {
				return err
			}
			fmt.Fprintf(out, "=> generated %d distinct mapping URIs\n", count)
			return nil
		},
	}
}

func debugCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debug <dialog.xml> <questions.csv>",
		Short: "Explain the dialog behavior on a set of annotated questions",
		Long: `Explain the dialog behavior on a set of annotated questions.

The questions file holds "id;text;intent" lines encoded in ISO-8859-1. The path
followed by each question is written to <result-dir>/<dialog>.<questions>.debug.csv.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Explain dialog behavior :")
			fmt.Fprintln(out)

			d, err := a.compile(out, args[0])
			if err != nil {
				return err
			}
			questions, err := readQuestions(args[1])
			if err != nil {
				return err
			}

			results, err := batch.Replay(cmd.Context(), d, questions, a.batchOptions())
			if err != nil {
				return err
			}

			name := baseName(args[0]) + "." + baseName(args[1]) + ".debug.csv"
			_, err = a.writeResult(out, name, func(w io.Writer) error {
				return report.WriteDebug(w, results)
			})
			return err
		},
	}
}

func optionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "options <dialog.xml>",
		Short: "Replay every disambiguation option of a dialog",
		Long: `Replay every disambiguation option of a dialog.

Each option offered by a disambiguation question is answered as if the user had
chosen it. The paths are written to <result-dir>/<dialog>.options.debug.csv.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Replay disambiguation options :")
			fmt.Fprintln(out)

			d, err := a.compile(out, args[0])
			if err != nil {
				return err
			}
			results, err := batch.ReplayOptions(cmd.Context(), d, a.batchOptions())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "=> replayed %d options\n", len(results))

			_, err = a.writeResult(out, baseName(args[0])+".options.debug.csv", func(w io.Writer) error {
				return report.WriteDebug(w, results)
			})
			return err
		},
	}
}

func compareCommand(a *app) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "compare <new.xml> <old.xml> <questions.csv>",
		Short: "Compare the answers of two versions of a dialog",
		Long: `Compare answers and dialog behavior for two versions of a dialog file on a set
of annotated questions.

Questions whose final result differs are written to
<result-dir>/<new>.<old>.<questions>.compare.csv. With --save the run is also
stored in the comparison database.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Compare results for two dialog files :")
			fmt.Fprintln(out)

			newDialog, err := a.compile(out, args[0])
			if err != nil {
				return err
			}
			oldDialog, err := a.compile(out, args[1])
			if err != nil {
				return err
			}
			questions, err := readQuestions(args[2])
			if err != nil {
				return err
			}

			impacts, err := batch.Compare(cmd.Context(), newDialog, oldDialog, questions, a.batchOptions())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Analysis completed :")
			fmt.Fprintf(out, "- impacts found on %d questions of the test set\n\n", len(impacts))

			name := baseName(args[0]) + "." + baseName(args[1]) + "." + baseName(args[2]) + ".compare.csv"
			if _, err := a.writeResult(out, name, func(w io.Writer) error {
				return report.WriteCompare(w, impacts)
			}); err != nil {
				return err
			}

			if !save {
				return nil
			}
			return a.saveComparison(cmd, args[0], args[1], len(questions), impacts)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Store the comparison run in the database")
	return cmd
}

func (a *app) saveComparison(cmd *cobra.Command, newPath, oldPath string, questionCount int, impacts []batch.Impact) error {
	s, err := store.NewStore(a.cfg.DBConnString)
	if err != nil {
		return err
	}
	defer s.Close()

	run := &store.ComparisonRun{
		NewDialog:     newPath,
		OldDialog:     oldPath,
		QuestionCount: questionCount,
		Impacts:       store.NewImpactRecords(impacts),
	}
	runID, err := s.SaveComparisonRun(cmd.Context(), run)
	if err != nil {
		return err
	}
	a.logger.Info("comparison run saved", zap.String("run_id", runID), zap.Int("impacts", run.ImpactCount))
	fmt.Fprintf(cmd.OutOrStdout(), "Saved comparison run %s\n", runID)
	return nil
}

func internalTestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "internaltest <dialog.xml>",
		Short: "Check the entity values matched on the sample questions of the TESTS intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Internal test - Check entity values matches :")
			fmt.Fprintln(out)

			d, err := a.compile(out, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d inconsistencies found\n\n", len(d.Diagnostics))

			name := baseName(args[0])
			if _, err := a.writeResult(out, name+".errors.csv", func(w io.Writer) error {
				return report.WriteErrors(w, d)
			}); err != nil {
				return err
			}

			questions, err := testsQuestions(d)
			if err != nil {
				return err
			}
			results, err := batch.Replay(cmd.Context(), d, questions, a.batchOptions())
			if err != nil {
				return err
			}
			_, err = a.writeResult(out, name+".internaltest.csv", func(w io.Writer) error {
				return report.WriteInternalTest(w, results)
			})
			return err
		},
	}
}

func runsCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored comparison runs, or show the impacts of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s, err := store.NewStore(a.cfg.DBConnString)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 {
				run, err := s.GetComparisonRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s : %s vs %s, %d/%d questions impacted\n\n",
					run.RunID, run.NewDialog, run.OldDialog, run.ImpactCount, run.QuestionCount)
				for _, im := range run.Impacts {
					fmt.Fprintf(out, "%s;%s;%s;%s\n", im.QuestionID, im.QuestionText, im.NewResult, im.OldResult)
				}
				return nil
			}

			runs, err := s.ListComparisonRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(out, "%s  %s  %s vs %s  %d/%d\n", run.RunID, run.CreatedAt.Format("2006-01-02 15:04"),
					run.NewDialog, run.OldDialog, run.ImpactCount, run.QuestionCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs listed")
	return cmd
}

func (a *app) batchOptions() batch.Options {
	return batch.Options{Workers: a.cfg.BatchWorkers, Logger: a.logger}
}

func readQuestions(path string) ([]batch.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()
	return batch.ReadQuestions(f)
}

// testsQuestions numbers the sample questions of the TESTS intent from 1.
func testsQuestions(d *dialog.Dialog) ([]batch.Question, error) {
	n, ok := d.Intent(testsIntent)
	if !ok {
		return nil, fmt.Errorf("intent %s not found in %s", testsIntent, d.FilePath)
	}
	questions := make([]batch.Question, 0, len(n.Intent.Questions))
	for i, q := range n.Intent.Questions {
		questions = append(questions, batch.Question{ID: strconv.Itoa(i + 1), Text: q, Intent: testsIntent})
	}
	return questions, nil
}
