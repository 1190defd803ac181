// Package cli implements the dialogtool command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dialogtool/internal/compiler"
	"dialogtool/internal/config"
	"dialogtool/internal/dialog"
)

// app carries the state shared by the commands of one invocation.
type app struct {
	verbose    bool
	configPath string
	resultDir  string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the dialogtool command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dialogtool",
		Short: "Check, explore and regression test Watson dialog files",
		Long: `dialogtool compiles a Watson dialog XML file into an in-memory model, reports its
inconsistencies, extracts the answers mapping URIs it can produce and replays
annotated test questions against one or two versions of the dialog.

Examples:
  dialogtool check dialog/savings_0703.xml
  dialogtool answers dialog/savings_0703.xml
  dialogtool debug dialog/savings_0703.xml input/questions1.csv
  dialogtool compare dialog/savings-v2.xml dialog/savings-v1.xml input/questions.csv --save
  dialogtool demo dialog/savings_0703.xml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.resultDir, "result-dir", "", "Directory of the result files (overrides config)")

	root.AddCommand(
		checkCommand(a),
		answersCommand(a),
		debugCommand(a),
		optionsCommand(a),
		compareCommand(a),
		internalTestCommand(a),
		runsCommand(a),
		classifyCommand(a),
		demoCommand(a),
		serveCommand(a),
		initDBCommand(a),
		importAnswersCommand(a),
	)
	return root
}

func (a *app) init() error {
	config.LoadEnv()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.resultDir != "" {
		cfg.ResultDir = a.resultDir
	}
	a.cfg = cfg

	if a.logger == nil {
		zcfg := zap.NewProductionConfig()
		if a.verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, buildErr := zcfg.Build()
		if buildErr != nil {
			return fmt.Errorf("failed to initialize logger: %w", buildErr)
		}
		a.logger = logger
	}
	return nil
}

// compile reads a dialog file with the configured federation allow-lists.
func (a *app) compile(out io.Writer, path string) (*dialog.Dialog, error) {
	allowLists, err := config.LoadFederation(a.cfg.FederationFile)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Reading %s ... ", filepath.Base(path))
	d, err := compiler.CompileFile(path, compiler.Options{Federation: allowLists, Logger: a.logger})
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return nil, err
	}
	fmt.Fprintln(out, "OK")
	fmt.Fprintln(out)
	return d, nil
}

// writeResult creates name in the result directory and fills it with write.
func (a *app) writeResult(out io.Writer, name string, write func(w io.Writer) error) (string, error) {
	if err := os.MkdirAll(a.cfg.ResultDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create result directory: %w", err)
	}
	path := filepath.Join(a.cfg.ResultDir, name)

	fmt.Fprintf(out, "Writing %s ... ", path)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	fmt.Fprintln(out, "OK")
	fmt.Fprintln(out)
	return path, nil
}

// baseName returns the file name of path without its extension.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
