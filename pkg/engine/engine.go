// Package engine wires discovery, classification, duplicate detection,
// stack detection, and coverage orchestration into one analysis run.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/coverage"
	"github.com/layerlens/layerlens/pkg/discovery"
	"github.com/layerlens/layerlens/pkg/observability"
	"github.com/layerlens/layerlens/pkg/report"
	"github.com/layerlens/layerlens/pkg/stack"
)

// DefaultWorkers is the fixed size of the classification worker pool.
const DefaultWorkers = 4

// Options configures an analysis engine.
type Options struct {
	// Rules overrides the built-in pattern rule set.
	Rules *classify.RuleSet

	// Workers is the classification pool size. Zero uses DefaultWorkers.
	Workers int

	// ExcludeGlobs are repository-relative patterns skipped by discovery.
	ExcludeGlobs []string

	// SkipCoverage disables coverage orchestration; the report then carries
	// all-zero coverage records.
	SkipCoverage bool

	// CoverageParallelism bounds concurrent coverage toolchain runs.
	CoverageParallelism int

	// CoverageTimeouts bounds external coverage tool invocations. Zero
	// fields use the coverage package defaults.
	CoverageTimeouts coverage.Timeouts

	// Runner overrides the external-command runner (tests inject fakes).
	Runner coverage.CommandRunner

	// Logger receives diagnostic output. Nil uses slog.Default.
	Logger *slog.Logger

	// Tracer creates spans around run phases. Nil disables tracing.
	Tracer trace.Tracer

	// Metrics records run rate/error/duration. Nil disables metrics.
	Metrics *observability.REDMetrics
}

// Engine performs one full analysis per Run call. Safe for concurrent use.
type Engine struct {
	classifier   *classify.Engine
	scanner      *discovery.Scanner
	detector     *stack.Detector
	orchestrator *coverage.Orchestrator
	workers      int
	skipCoverage bool
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *observability.REDMetrics
}

// New builds an engine from options.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	classifier, err := classify.NewEngine(opts.Rules, logger)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	runner := opts.Runner
	if runner == nil {
		runner = coverage.ExecRunner{}
	}

	return &Engine{
		classifier: classifier,
		scanner:    discovery.NewScanner(classifier, opts.ExcludeGlobs, logger),
		detector:   stack.NewDetector(logger),
		orchestrator: coverage.NewOrchestrator(
			coverage.DefaultToolchains(runner, opts.CoverageTimeouts, logger),
			opts.CoverageParallelism,
			logger,
		),
		workers:      workers,
		skipCoverage: opts.SkipCoverage,
		logger:       logger,
		tracer:       opts.Tracer,
		metrics:      opts.Metrics,
	}, nil
}

// Run analyzes the repository at root and returns its report. Only an
// invalid root terminates the run; every other failure is absorbed at its
// component boundary and reflected as empty or zero report sections.
func (e *Engine) Run(ctx context.Context, root string) (*report.Report, error) {
	start := time.Now()

	ctx, span := e.startSpan(ctx, "layerlens.run")
	defer span.End()

	rep, err := e.run(ctx, root)

	e.recordRun(ctx, err, time.Since(start))

	return rep, err
}

func (e *Engine) run(ctx context.Context, root string) (*report.Report, error) {
	files, err := e.scanner.Scan(root)
	if err != nil {
		return nil, err
	}

	e.logger.Info("discovered test candidates", "count", len(files))

	classified := e.classifyAll(ctx, files)

	// Duplicate detection and stack detection are independent of each
	// other; run them concurrently.
	var (
		duplicates []classify.DuplicateEntry
		stacks     []stack.Stack
		wg         sync.WaitGroup
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		duplicates = classify.FindDuplicates(classified)
	}()

	go func() {
		defer wg.Done()

		detected, detectErr := e.detector.Detect(root)
		if detectErr != nil {
			e.logger.Warn("stack detection failed", "error", detectErr)

			return
		}

		stacks = detected
	}()

	wg.Wait()

	cov := coverage.NewLayerRecords()
	if !e.skipCoverage {
		_, covSpan := e.startSpan(ctx, "layerlens.coverage")
		cov = e.orchestrator.Run(ctx, root, classified, stacks)
		covSpan.End()
	}

	return report.Aggregate(classified, duplicates, cov, stacks, e.classifier.Version()), nil
}

// classifyAll classifies files on a fixed-size worker pool. Each worker
// writes only its own result slot, so merging needs no locks.
func (e *Engine) classifyAll(ctx context.Context, files []classify.SourceFile) []classify.ClassifiedFile {
	_, span := e.startSpan(ctx, "layerlens.classify")
	defer span.End()

	results := make([]classify.ClassifiedFile, len(files))
	jobs := make(chan int, e.workers)

	var wg sync.WaitGroup

	wg.Add(e.workers)

	for range e.workers {
		go func() {
			defer wg.Done()

			for i := range jobs {
				results[i] = e.classifier.Classify(files[i])
			}
		}()
	}

	for i := range files {
		jobs <- i
	}

	close(jobs)
	wg.Wait()

	// Files that matched discovery heuristics but classified to nothing
	// contribute nothing downstream.
	classified := make([]classify.ClassifiedFile, 0, len(results))

	for _, cf := range results {
		if len(cf.Layers) > 0 {
			classified = append(classified, cf)
		}
	}

	return classified
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return e.tracer.Start(ctx, name)
}

func (e *Engine) recordRun(ctx context.Context, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}

	e.metrics.RecordRequest(ctx, "engine.run", status, elapsed)
}
