// Package report assembles classification, duplicate, and coverage results
// into the single aggregate returned to callers.
package report

import (
	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/coverage"
	"github.com/layerlens/layerlens/pkg/stack"
)

// Report is the root aggregate of one analysis run. It is immutable after
// construction, serializable to nested key/value JSON, and a pure function
// of the classified inputs.
type Report struct {
	// Files maps each layer to its classified files in discovery order.
	Files map[classify.Layer][]classify.ClassifiedFile `json:"files"`

	// TestCounts maps each layer to its total test-function count.
	TestCounts map[classify.Layer]int `json:"test_counts"`

	// Duplicates lists test names classified under more than one layer.
	Duplicates []classify.DuplicateEntry `json:"duplicates"`

	// Coverage maps each layer to its line-coverage record.
	Coverage coverage.LayerRecords `json:"coverage"`

	// Stacks lists the technology stacks detected in the repository.
	Stacks []stack.Stack `json:"stacks"`

	// RulesVersion identifies the pattern rule set used.
	RulesVersion string `json:"rules_version"`
}

// Aggregate merges upstream component outputs into a Report. It performs no
// I/O and cannot fail on well-formed inputs; a nil coverage map is treated
// as all-zero records.
func Aggregate(
	classified []classify.ClassifiedFile,
	duplicates []classify.DuplicateEntry,
	cov coverage.LayerRecords,
	stacks []stack.Stack,
	rulesVersion string,
) *Report {
	if cov == nil {
		cov = coverage.NewLayerRecords()
	}

	files := make(map[classify.Layer][]classify.ClassifiedFile, len(classify.AllLayers))
	counts := make(map[classify.Layer]int, len(classify.AllLayers))

	for _, layer := range classify.AllLayers {
		files[layer] = nil
		counts[layer] = 0
	}

	for _, cf := range classified {
		for _, layer := range cf.Layers {
			files[layer] = append(files[layer], cf)
			counts[layer] += len(cf.Functions)
		}
	}

	return &Report{
		Files:        files,
		TestCounts:   counts,
		Duplicates:   duplicates,
		Coverage:     cov,
		Stacks:       stacks,
		RulesVersion: rulesVersion,
	}
}

// TotalTests returns the test-function count across all layers.
func (r *Report) TotalTests() int {
	total := 0
	for _, count := range r.TestCounts {
		total += count
	}

	return total
}

// FileCount returns the number of classified files in the given layer.
func (r *Report) FileCount(layer classify.Layer) int {
	return len(r.Files[layer])
}
