// # internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	sitter "github.com/tree-sitter/go-tree-sitter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"blockscope/internal/config"
	"blockscope/internal/history"
	"blockscope/internal/observability"
	"blockscope/internal/parser"
	"blockscope/internal/scope"
)

// App is the batch driver: it discovers source files, parses them, runs the
// scope checker once per top-level function or class, and aggregates
// diagnostics across files.
type App struct {
	Config *config.Config

	parser  *parser.Parser
	history *history.Store
	conv    scope.Conventions
}

// RunResult summarizes one complete pass over the requested roots.
type RunResult struct {
	RunID       string
	Files       int
	FailedFiles int
	Diagnostics []scope.Diagnostic
	Duration    time.Duration
}

func New(cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		parser: parser.NewParser(parser.NewGrammarLoader()),
		conv: scope.Conventions{
			Receiver:      cfg.Conventions.Receiver,
			SkipDecorator: cfg.Conventions.SkipDecorator,
			ScopeBoundary: cfg.Conventions.ScopeBoundary,
		},
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		a.history = store
	}

	return a, nil
}

func (a *App) Close() error {
	return a.history.Close()
}

// Run checks every discoverable file under paths. A parse or internal
// failure in one file among many is downgraded to a single diagnostic naming
// that file; when exactly one file was requested the underlying error
// propagates unmodified.
func (a *App) Run(ctx context.Context, paths []string) (*RunResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.Run")
	defer span.End()

	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}

	files, err := a.ScanPaths(paths)
	if err != nil {
		return nil, err
	}

	singleFile := false
	if len(paths) == 1 {
		if info, statErr := os.Stat(paths[0]); statErr == nil && !info.IsDir() {
			singleFile = true
		}
	}

	for _, path := range files {
		diags, err := a.CheckFile(ctx, path)
		if err != nil {
			if singleFile {
				return nil, err
			}
			observability.FilesFailed.Inc()
			result.FailedFiles++
			slog.Warn("unrecoverable error in file", "path", path, "error", err)
			diags = []scope.Diagnostic{{
				Unit:    path,
				Line:    1,
				Message: fmt.Sprintf("unrecoverable error: %v", err),
			}}
		}
		result.Files++
		result.Diagnostics = append(result.Diagnostics, diags...)
	}

	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("blockscope.files", result.Files),
		attribute.Int("blockscope.diagnostics", len(result.Diagnostics)),
	)

	if a.history != nil {
		if err := a.history.SaveRun(history.Run{
			ID:          result.RunID,
			Timestamp:   start.UTC(),
			Files:       result.Files,
			FailedFiles: result.FailedFiles,
			Diagnostics: len(result.Diagnostics),
			Duration:    result.Duration,
		}); err != nil {
			slog.Warn("failed to record run history", "error", err)
		}
	}

	return result, nil
}

// CheckFile parses one file and checks each of its top-level functions and
// classes in batch mode, with the module-level symbol set precomputed from
// imports, assignments and definitions.
func (a *App) CheckFile(ctx context.Context, path string) (diags []scope.Diagnostic, err error) {
	_, span := observability.Tracer.Start(ctx, "app.CheckFile", trace.WithAttributes(
		attribute.String("blockscope.path", path),
	))
	defer span.End()

	// A malformed tree must cost one file, never the whole batch.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error checking %s: %v", path, r)
		}
	}()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	parseStart := time.Now()
	tree, err := a.parser.ParseFile(path, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	observability.ParseDuration.Observe(time.Since(parseStart).Seconds())

	checkStart := time.Now()
	diags = a.checkTree(tree)
	observability.CheckDuration.Observe(time.Since(checkStart).Seconds())
	observability.FilesChecked.Inc()
	observability.DiagnosticsTotal.Add(float64(len(diags)))

	return diags, nil
}

func (a *App) checkTree(tree *parser.Tree) []scope.Diagnostic {
	root := tree.Root()
	globals := a.moduleSymbols(tree)

	var diags []scope.Diagnostic
	for i := uint(0); i < root.NamedChildCount(); i++ {
		node := root.NamedChild(i)

		target := node
		if node.Kind() == "decorated_definition" {
			if a.hasSkipDecorator(tree, node) {
				continue
			}
			if def := node.ChildByFieldName("definition"); def != nil {
				target = def
			}
		}

		switch target.Kind() {
		case "function_definition":
			checker := scope.NewChecker(tree.Source, scope.Options{
				Globals:     globals,
				File:        tree.Path,
				Conventions: a.conv,
			})
			// Batch mode never returns an error.
			_ = checker.Check(node)
			diags = append(diags, checker.Diagnostics()...)
		case "class_definition":
			classDiags, _ := scope.AnalyzeClass(target, tree.Source, globals, tree.Path, a.conv)
			diags = append(diags, classDiags...)
		}
	}
	return diags
}

// moduleSymbols populates the outer scope for top-level units: module
// imports, top-level assignment targets, and function/class names.
func (a *App) moduleSymbols(tree *parser.Tree) []string {
	root := tree.Root()
	var symbols []string
	for i := uint(0); i < root.NamedChildCount(); i++ {
		node := root.NamedChild(i)

		target := node
		if node.Kind() == "decorated_definition" {
			if def := node.ChildByFieldName("definition"); def != nil {
				target = def
			}
		}

		switch target.Kind() {
		case "import_statement", "import_from_statement":
			symbols = append(symbols, scope.ImportBindings(target, tree.Source)...)
		case "function_definition", "class_definition":
			if name := target.ChildByFieldName("name"); name != nil {
				symbols = append(symbols, string(tree.Source[name.StartByte():name.EndByte()]))
			}
		case "expression_statement":
			for j := uint(0); j < target.NamedChildCount(); j++ {
				expr := target.NamedChild(j)
				if expr.Kind() == "assignment" {
					symbols = append(symbols, scope.AssignTargets(expr.ChildByFieldName("left"), tree.Source, a.conv.Receiver)...)
				}
			}
		}
	}
	return symbols
}

func (a *App) hasSkipDecorator(tree *parser.Tree, decorated *sitter.Node) bool {
	for i := uint(0); i < decorated.NamedChildCount(); i++ {
		child := decorated.NamedChild(i)
		if child.Kind() != "decorator" {
			continue
		}
		expr := child.NamedChild(0)
		if expr != nil && expr.Kind() == "identifier" &&
			string(tree.Source[expr.StartByte():expr.EndByte()]) == a.conv.SkipDecorator {
			return true
		}
	}
	return false
}
