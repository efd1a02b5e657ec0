package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/stack"
)

// PytestToolchain measures Python coverage with coverage.py driving pytest.
// It uses the per-layer isolated strategy: for each layer a scoped
// configuration omits every test file belonging to the other layers, so the
// parsed totals attribute directly to that layer.
type PytestToolchain struct {
	runner   CommandRunner
	logger   *slog.Logger
	timeouts Timeouts
}

// NewPytestToolchain creates the Python toolchain. Zero timeout fields fall
// back to the package defaults.
func NewPytestToolchain(runner CommandRunner, timeouts Timeouts, logger *slog.Logger) *PytestToolchain {
	if logger == nil {
		logger = slog.Default()
	}

	return &PytestToolchain{
		runner:   runner,
		logger:   logger,
		timeouts: timeouts.withDefaults(),
	}
}

// Name identifies the toolchain in diagnostics.
func (t *PytestToolchain) Name() string { return "coverage.py+pytest" }

// Supports reports whether the toolchain measures the given stack.
func (t *PytestToolchain) Supports(st stack.Stack) bool {
	return st.Ecosystem == stack.EcosystemPython && st.Framework == ""
}

// Measure runs one isolated coverage pass per layer. A failing or timed-out
// pass contributes zero for its layer and never fails the whole measurement.
func (t *PytestToolchain) Measure(
	ctx context.Context, root string, files []classify.ClassifiedFile,
) (LayerRecords, error) {
	records := NewLayerRecords()

	pyFiles := filterByExt(files, ".py")
	if len(pyFiles) == 0 {
		return records, nil
	}

	for _, layer := range classify.AllLayers {
		rec, err := t.measureLayer(ctx, root, layer, pyFiles)
		if err != nil {
			t.logger.Warn("layer coverage pass failed, recording zero",
				"toolchain", t.Name(), "layer", layer, "error", err)

			continue
		}

		records[layer] = rec
	}

	return records, nil
}

// measureLayer writes a scoped rcfile omitting other layers' test files,
// runs pytest under coverage, and parses the summary table.
func (t *PytestToolchain) measureLayer(
	ctx context.Context, root string, layer classify.Layer, files []classify.ClassifiedFile,
) (Record, error) {
	if countForLayer(files, layer) == 0 {
		return Record{}, nil
	}

	rcPath, err := t.writeScopedConfig(root, layer, files)
	if err != nil {
		return Record{}, err
	}

	// The scoped configuration is an ephemeral artifact; remove it on every
	// exit path.
	defer func() {
		if rmErr := os.Remove(rcPath); rmErr != nil {
			t.logger.Warn("failed to remove scoped coverage config", "path", rcPath, "error", rmErr)
		}
	}()

	rcFlag := "--rcfile=" + rcPath

	out, err := t.runner.Run(ctx, root, t.timeouts.Test, "coverage", "run", rcFlag, "-m", "pytest")
	if err != nil {
		return Record{}, fmt.Errorf("coverage run (%s): %w", layer, err)
	}

	t.logger.Debug("coverage run output", "layer", layer, "bytes", len(out))

	report, err := t.runner.Run(ctx, root, t.timeouts.Report, "coverage", "report", rcFlag)
	if err != nil {
		return Record{}, fmt.Errorf("coverage report (%s): %w", layer, err)
	}

	total, covered, err := (TabularParser{}).Parse(report)
	if err != nil {
		return Record{}, err
	}

	return Record{Covered: covered, Total: total}, nil
}

// writeScopedConfig creates a temporary .coveragerc whose omit list excludes
// every test file not belonging to the target layer.
func (t *PytestToolchain) writeScopedConfig(
	root string, layer classify.Layer, files []classify.ClassifiedFile,
) (string, error) {
	var omit []string

	for _, cf := range files {
		if cf.HasLayer(layer) {
			continue
		}

		rel, err := filepath.Rel(root, cf.File.Path)
		if err != nil {
			rel = cf.File.Path
		}

		omit = append(omit, filepath.ToSlash(rel))
	}

	var sb strings.Builder

	sb.WriteString("[run]\n")

	if len(omit) > 0 {
		sb.WriteString("omit =\n")

		for _, path := range omit {
			sb.WriteString("    " + path + "\n")
		}
	}

	f, err := os.CreateTemp(root, ".layerlens-coveragerc-*")
	if err != nil {
		return "", fmt.Errorf("create scoped coverage config: %w", err)
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		os.Remove(f.Name())

		return "", fmt.Errorf("write scoped coverage config: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())

		return "", fmt.Errorf("close scoped coverage config: %w", err)
	}

	return f.Name(), nil
}

func filterByExt(files []classify.ClassifiedFile, ext string) []classify.ClassifiedFile {
	var out []classify.ClassifiedFile

	for _, cf := range files {
		if cf.File.Ext == ext {
			out = append(out, cf)
		}
	}

	return out
}

func countForLayer(files []classify.ClassifiedFile, layer classify.Layer) int {
	count := 0

	for _, cf := range files {
		if cf.HasLayer(layer) {
			count++
		}
	}

	return count
}
