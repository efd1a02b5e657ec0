package coverage

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/stack"
)

// NpmToolchain measures JavaScript/TypeScript coverage. Layers share one
// test execution in this ecosystem, so it uses the per-project proportional
// strategy: run coverage once per sub-project (a directory with its own
// package.json carrying a test script), parse the aggregate summary, and
// distribute the counts across layers by each layer's share of the
// sub-project's test files.
type NpmToolchain struct {
	runner   CommandRunner
	logger   *slog.Logger
	timeouts Timeouts
}

// NewNpmToolchain creates the Node toolchain. Zero timeout fields fall back
// to the package defaults.
func NewNpmToolchain(runner CommandRunner, timeouts Timeouts, logger *slog.Logger) *NpmToolchain {
	if logger == nil {
		logger = slog.Default()
	}

	return &NpmToolchain{
		runner:   runner,
		logger:   logger,
		timeouts: timeouts.withDefaults(),
	}
}

// Name identifies the toolchain in diagnostics.
func (t *NpmToolchain) Name() string { return "npm+istanbul" }

// Supports reports whether the toolchain measures the given stack.
func (t *NpmToolchain) Supports(st stack.Stack) bool {
	return st.Ecosystem == stack.EcosystemJavaScript || st.Ecosystem == stack.EcosystemTypeScript
}

// jsExtensions are the file extensions attributed to this toolchain.
var jsExtensions = map[string]bool{".js": true, ".jsx": true, ".ts": true, ".tsx": true}

// Measure runs every runnable sub-project sequentially; each sub-project is
// only ever executed once per run, and a failing sub-project contributes
// zero without failing the rest.
func (t *NpmToolchain) Measure(
	ctx context.Context, root string, files []classify.ClassifiedFile,
) (LayerRecords, error) {
	records := NewLayerRecords()

	projects := t.findSubProjects(root)

	for _, project := range projects {
		contribution, err := t.measureProject(ctx, project, files)
		if err != nil {
			t.logger.Warn("sub-project coverage failed, recording zero",
				"toolchain", t.Name(), "project", project, "error", err)

			continue
		}

		records.Merge(contribution)
	}

	return records, nil
}

// packageManifest is the subset of package.json needed to decide
// runnability.
type packageManifest struct {
	Scripts map[string]string `json:"scripts"`
}

// findSubProjects returns directories containing a package.json with a test
// script, skipping node_modules.
func (t *NpmToolchain) findSubProjects(root string) []string {
	var projects []string

	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if entry.IsDir() {
			name := entry.Name()
			if path != root && (name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}

			return nil
		}

		if entry.Name() != "package.json" {
			return nil
		}

		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			t.logger.Warn("failed to read manifest", "path", path, "error", readErr)

			return nil
		}

		var manifest packageManifest
		if jsonErr := json.Unmarshal(raw, &manifest); jsonErr != nil {
			t.logger.Warn("malformed manifest", "path", path, "error", jsonErr)

			return nil
		}

		if _, ok := manifest.Scripts["test"]; ok {
			projects = append(projects, filepath.Dir(path))
		}

		return nil
	})

	return projects
}

// measureProject installs dependencies, runs the test script with coverage,
// and distributes the parsed aggregate proportionally across layers.
func (t *NpmToolchain) measureProject(
	ctx context.Context, dir string, files []classify.ClassifiedFile,
) (LayerRecords, error) {
	shares := layerShares(dir, files)
	if shares == nil {
		// No test files in this sub-project; nothing to attribute.
		return NewLayerRecords(), nil
	}

	if _, err := t.runner.Run(ctx, dir, t.timeouts.Setup, "npm", "install", "--no-audit", "--no-fund"); err != nil {
		return nil, err
	}

	if out, err := t.runner.Run(ctx, dir, t.timeouts.Test, "npm", "test", "--", "--coverage"); err != nil {
		t.logger.Debug("npm test output", "project", dir, "output", string(out))

		return nil, err
	}

	summaryPath := filepath.Join(dir, "coverage", "coverage-summary.json")

	raw, err := os.ReadFile(summaryPath)
	if err != nil {
		return nil, err
	}

	total, covered, err := (IstanbulSummaryParser{}).Parse(raw)
	if err != nil {
		return nil, err
	}

	records := NewLayerRecords()

	for layer, share := range shares {
		records[layer] = Record{
			Covered: int(math.Round(float64(covered) * share)),
			Total:   int(math.Round(float64(total) * share)),
		}
	}

	return records, nil
}

// layerShares computes each layer's fraction of the sub-project's JS/TS test
// files. Returns nil when the sub-project has no test files (its share
// computation is undefined and it contributes nothing).
func layerShares(dir string, files []classify.ClassifiedFile) map[classify.Layer]float64 {
	counts := make(map[classify.Layer]int)
	total := 0

	prefix := dir + string(filepath.Separator)

	for _, cf := range files {
		if !jsExtensions[cf.File.Ext] {
			continue
		}

		if cf.File.Path != dir && !strings.HasPrefix(cf.File.Path, prefix) {
			continue
		}

		for _, layer := range cf.Layers {
			counts[layer]++
			total++
		}
	}

	if total == 0 {
		return nil
	}

	shares := make(map[classify.Layer]float64, len(counts))
	for layer, count := range counts {
		shares[layer] = float64(count) / float64(total)
	}

	return shares
}
