package coverage

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/stack"
)

// JacocoToolchain measures JVM coverage from a JaCoCo XML report. Maven runs
// all surefire tests in one execution, so per-layer scoping is not cheaply
// available; the aggregate counts are distributed proportionally like the
// Node toolchain.
type JacocoToolchain struct {
	runner   CommandRunner
	logger   *slog.Logger
	timeouts Timeouts
}

// NewJacocoToolchain creates the JVM toolchain. Zero timeout fields fall
// back to the package defaults.
func NewJacocoToolchain(runner CommandRunner, timeouts Timeouts, logger *slog.Logger) *JacocoToolchain {
	if logger == nil {
		logger = slog.Default()
	}

	return &JacocoToolchain{runner: runner, logger: logger, timeouts: timeouts.withDefaults()}
}

// Name identifies the toolchain in diagnostics.
func (t *JacocoToolchain) Name() string { return "maven+jacoco" }

// Supports reports whether the toolchain measures the given stack.
func (t *JacocoToolchain) Supports(st stack.Stack) bool {
	return st.Ecosystem == stack.EcosystemJava || st.Ecosystem == stack.EcosystemKotlin
}

// jvmExtensions are the file extensions attributed to this toolchain.
var jvmExtensions = map[string]bool{".java": true, ".kt": true}

// Measure obtains line counts from a JaCoCo or Cobertura XML report and
// distributes them across layers. Repositories without a pom.xml, or whose
// build fails, contribute zero.
func (t *JacocoToolchain) Measure(
	ctx context.Context, root string, files []classify.ClassifiedFile,
) (LayerRecords, error) {
	records := NewLayerRecords()

	if _, err := os.Stat(filepath.Join(root, "pom.xml")); err != nil {
		t.logger.Debug("no pom.xml, skipping jvm coverage", "root", root)

		return records, nil
	}

	shares := jvmLayerShares(files)
	if shares == nil {
		return records, nil
	}

	total, covered, ok := t.readReport(ctx, root)
	if !ok {
		return records, nil
	}

	for layer, share := range shares {
		records[layer] = Record{
			Covered: int(math.Round(float64(covered) * share)),
			Total:   int(math.Round(float64(total) * share)),
		}
	}

	return records, nil
}

// readReport reuses an existing JaCoCo or Cobertura artifact when the build
// already produced one; only when neither is present does it drive the
// Maven build and parse the fresh JaCoCo output.
func (t *JacocoToolchain) readReport(ctx context.Context, root string) (total, covered int, ok bool) {
	jacocoPath := filepath.Join(root, "target", "site", "jacoco", "jacoco.xml")
	coberturaPath := filepath.Join(root, "target", "site", "cobertura", "coverage.xml")

	if total, covered, ok = t.parseArtifact(jacocoPath, JacocoParser{}); ok {
		return total, covered, true
	}

	if total, covered, ok = t.parseArtifact(coberturaPath, CoberturaParser{}); ok {
		return total, covered, true
	}

	out, runErr := t.runner.Run(ctx, root, t.timeouts.Setup, "mvn", "-q", "test", "jacoco:report")
	if runErr != nil {
		t.logger.Warn("maven coverage run failed, recording zero",
			"toolchain", t.Name(), "error", runErr, "output_bytes", len(out))

		return 0, 0, false
	}

	if total, covered, ok = t.parseArtifact(jacocoPath, JacocoParser{}); !ok {
		t.logger.Warn("jacoco report unusable after build", "path", jacocoPath)

		return 0, 0, false
	}

	return total, covered, true
}

func (t *JacocoToolchain) parseArtifact(path string, parser ReportParser) (total, covered int, ok bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}

	total, covered, err = parser.Parse(raw)
	if err != nil {
		t.logger.Warn("coverage report unparseable", "path", path, "error", err)

		return 0, 0, false
	}

	return total, covered, true
}

func jvmLayerShares(files []classify.ClassifiedFile) map[classify.Layer]float64 {
	counts := make(map[classify.Layer]int)
	total := 0

	for _, cf := range files {
		if !jvmExtensions[cf.File.Ext] {
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
