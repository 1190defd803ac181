// CLI harness runner for dialog conversation suites.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dialogtool/internal/answerstore"
	"dialogtool/internal/compiler"
	"dialogtool/internal/config"
	"dialogtool/internal/harness"
	"dialogtool/internal/session"
)

func main() {
	dialogFile := flag.String("dialog", "", "Dialog XML file")
	suiteFile := flag.String("suite", "", "Scenario suite YAML file")
	answersFile := flag.String("answers", "", "Answer units JSON file (optional)")
	federationFile := flag.String("federation", "", "Federation allow-lists YAML file (optional)")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *dialogFile == "" || *suiteFile == "" {
		fmt.Fprintln(os.Stderr, "usage: harness -dialog <file.xml> -suite <suite.yaml> [-answers <file.json>] [-v]")
		os.Exit(2)
	}

	ctx := context.Background()

	allowLists, err := config.LoadFederation(*federationFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Federation error: %v\n", err)
		os.Exit(1)
	}
	d, err := compiler.CompileFile(*dialogFile, compiler.Options{Federation: allowLists})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dialog error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Dialog: %s (%d intents, %d nodes)\n\n", d.FilePath, len(d.IntentNodes()), d.NodeCount())

	conv := &session.Conversation{Dialog: d}
	if *answersFile != "" {
		answers, loadErr := answerstore.LoadFile(*answersFile)
		if loadErr != nil {
			fmt.Fprintf(os.Stderr, "Answers error: %v\n", loadErr)
			os.Exit(1)
		}
		conv.Answers = answers
	}

	suite, err := harness.LoadSuite(*suiteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Suite error: %v\n", err)
		os.Exit(1)
	}

	runner := harness.NewRunner(conv).WithVerbose(*verbose)
	result, err := runner.Run(ctx, *suite)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Suite error: %v\n", err)
		os.Exit(1)
	}

	// Print results
	fmt.Printf("Suite: %s\n", result.Name)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Passed: %d, Failed: %d, Skipped: %d\n\n", result.Passed, result.Failed, result.Skipped)

	for _, r := range result.Results {
		status := "PASS"
		if r.Skipped {
			status = "SKIP"
		} else if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s (%v)\n", status, r.Case, r.Duration)
		if *verbose {
			for _, reply := range r.Replies {
				fmt.Printf("       %s %s\n", reply.Kind, reply.Path)
			}
		}
		if r.Error != "" {
			fmt.Printf("       Error: %s\n", r.Error)
		}
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}
