package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rendis/flowcraft/internal/document"
	"github.com/rendis/flowcraft/internal/flowchart"
	"github.com/rendis/flowcraft/internal/graph"
	"github.com/rendis/flowcraft/internal/logging"
	"github.com/rendis/flowcraft/internal/render"
	"github.com/rendis/flowcraft/internal/validation"
	"github.com/rendis/flowcraft/pkg/schema"
)

// readInput reads a document file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// runValidate checks a document file. Exit status is 1 when the document
// has errors or cannot be read.
func runValidate(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	deep := fs.Bool("deep", false, "also report cycles and unreachable nodes")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: flowcraft validate [-deep] [-json] <file|->")
		return 2
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg := loadConfig()
	svc := flowchart.NewService(flowchart.Deps{
		Logger: logging.New(os.Stderr, cfg.LogLevel),
		Canvas: cfg.canvas(),
	})
	res, err := svc.ValidateDocument(data, validation.Options{Deep: *deep})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"valid":    res.Valid(),
			"errors":   orEmpty(res.Errors),
			"warnings": orEmpty(res.Warnings),
		})
	} else {
		printIssues(out, "error", res.Errors)
		printIssues(out, "warning", res.Warnings)
		if res.Valid() {
			fmt.Fprintf(out, "valid (%d warnings)\n", len(res.Warnings))
		} else {
			fmt.Fprintf(out, "invalid: %v (%d warnings)\n", res.ToError(), len(res.Warnings))
		}
	}

	if !res.Valid() {
		return 1
	}
	return 0
}

func printIssues(out io.Writer, severity string, issues []schema.ValidationIssue) {
	for _, is := range issues {
		fmt.Fprintf(out, "%s: %s [%s] %s\n", severity, is.Path, is.Code, is.Message)
	}
}

func orEmpty(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}

// runRender renders a document file in the requested format.
func runRender(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	format := fs.String("format", "mermaid", "output format: mermaid, text, png or svg")
	output := fs.String("o", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: flowcraft render [-format f] [-o file] <file|->")
		return 2
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	d, _, err := document.Parse(data, graph.WithCanvas(loadConfig().canvas()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	res, err := render.Render(context.Background(), render.Build(d, nil), *format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *output != "" {
		if err := os.WriteFile(*output, res.Body, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if _, err := out.Write(res.Body); err != nil {
		return 1
	}
	return 0
}
