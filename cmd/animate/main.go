// CLI for playing animated demo conversations against dialogtool serve.
//
// Usage:
//
//	animate -f scenarios/savings.yaml
//	animate -f scenarios/savings.yaml --speed 2.0
//	animate --list scenarios/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dialogtool/internal/animate"
)

func main() {
	scenarioFile := flag.String("f", "", "Scenario YAML file to run")
	scenarioDir := flag.String("list", "", "List scenarios in directory")
	serverURL := flag.String("server-url", "http://127.0.0.1:8080", "dialogtool serve URL")
	speed := flag.Float64("speed", 1.0, "Speed multiplier (1.0 = normal, 2.0 = 2x faster)")
	verbose := flag.Bool("v", false, "Show interpreter paths and messages")
	noColor := flag.Bool("no-color", false, "Disable color output")
	interactive := flag.Bool("i", false, "Interactive mode (pause between steps)")
	stopOnError := flag.Bool("stop-on-error", false, "Stop if a step fails")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: animate [options]\n\n")
		fmt.Fprintf(os.Stderr, "Play animated demo conversations against a dialogtool server.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *scenarioDir != "" {
		if err := listScenarios(*scenarioDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *scenarioFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -f <scenario.yaml> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	scenario, err := animate.LoadScenario(*scenarioFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}

	runner := animate.NewRunner(animate.RunConfig{
		ServerURL:   *serverURL,
		Speed:       *speed,
		Verbose:     *verbose,
		NoColor:     *noColor,
		Interactive: *interactive,
		StopOnError: *stopOnError,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, *scenario)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !result.Success {
		os.Exit(1)
	}
}

func listScenarios(dir string) error {
	scenarios, err := animate.LoadAllScenarios(dir)
	if err != nil {
		return err
	}

	if len(scenarios) == 0 {
		fmt.Println("No scenarios found in", dir)
		return nil
	}

	fmt.Printf("Scenarios in %s:\n\n", dir)
	for _, s := range scenarios {
		fmt.Printf("  %-30s %d steps\n", s.Name, len(s.Steps))
		if s.Description != "" {
			fmt.Printf("    %s\n", s.Description)
		}
	}
	fmt.Println()

	return nil
}
