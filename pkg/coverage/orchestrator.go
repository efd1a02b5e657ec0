package coverage

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/stack"
)

// Toolchain is one ecosystem's coverage-measurement strategy.
type Toolchain interface {
	Name() string
	Supports(st stack.Stack) bool
	Measure(ctx context.Context, root string, files []classify.ClassifiedFile) (LayerRecords, error)
}

// Orchestrator selects and runs the coverage toolchains matching the
// detected stacks and merges their per-layer records.
type Orchestrator struct {
	toolchains  []Toolchain
	logger      *slog.Logger
	parallelism int
}

// defaultParallelism bounds concurrent toolchain executions. Toolchains own
// disjoint ecosystems, so no two invocations ever target the same
// sub-project.
const defaultParallelism = 2

// NewOrchestrator creates an orchestrator over the given toolchains. A zero
// or negative parallelism uses the default.
func NewOrchestrator(toolchains []Toolchain, parallelism int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	return &Orchestrator{toolchains: toolchains, logger: logger, parallelism: parallelism}
}

// DefaultToolchains returns the built-in toolchain set over the given
// command runner and invocation deadlines.
func DefaultToolchains(runner CommandRunner, timeouts Timeouts, logger *slog.Logger) []Toolchain {
	return []Toolchain{
		NewPytestToolchain(runner, timeouts, logger),
		NewNpmToolchain(runner, timeouts, logger),
		NewJacocoToolchain(runner, timeouts, logger),
	}
}

// Run measures coverage for every detected stack and returns the merged
// per-layer records. Toolchain failures are absorbed: a failing toolchain
// contributes zero, and the result always has every layer present. With no
// detected stacks all records are zero.
func (o *Orchestrator) Run(
	ctx context.Context, root string, files []classify.ClassifiedFile, stacks []stack.Stack,
) LayerRecords {
	merged := NewLayerRecords()

	selected := o.selectToolchains(stacks)
	if len(selected) == 0 {
		o.logger.Info("no coverage toolchain matches detected stacks", "stacks", len(stacks))

		return merged
	}

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.parallelism)

	for _, tc := range selected {
		group.Go(func() error {
			records, err := tc.Measure(groupCtx, root, files)
			if err != nil {
				// Absorbed: the rest of the run proceeds with partial data.
				o.logger.Warn("toolchain measurement failed",
					"toolchain", tc.Name(), "error", err)

				return nil
			}

			mu.Lock()
			merged.Merge(records)
			mu.Unlock()

			return nil
		})
	}

	// Errors are absorbed inside each goroutine; Wait only synchronizes.
	_ = group.Wait()

	return merged
}

// selectToolchains returns each toolchain at most once, in registration
// order, keeping only those supporting at least one detected stack.
func (o *Orchestrator) selectToolchains(stacks []stack.Stack) []Toolchain {
	var selected []Toolchain

	for _, tc := range o.toolchains {
		for _, st := range stacks {
			if tc.Supports(st) {
				selected = append(selected, tc)

				break
			}
		}
	}

	return selected
}
