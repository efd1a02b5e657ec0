package coverage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/coverage"
)

const jacocoXML = `<?xml version="1.0"?>
<report name="demo">
  <counter type="LINE" missed="100" covered="300"/>
</report>`

func javaFile(path string, layer classify.Layer) classify.ClassifiedFile {
	return classify.ClassifiedFile{
		File:   classify.SourceFile{Path: path, Ext: ".java"},
		Layers: []classify.Layer{layer},
	}
}

func TestJacocoToolchain_ReusesExistingReport(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pom.xml"), []byte("<project/>"), 0o600))

	reportDir := filepath.Join(root, "target", "site", "jacoco")
	require.NoError(t, os.MkdirAll(reportDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, "jacoco.xml"), []byte(jacocoXML), 0o600))

	runner := &fakeRunner{}
	tc := coverage.NewJacocoToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		javaFile(filepath.Join(root, "src", "test", "UnitTest.java"), classify.LayerUnit),
		javaFile(filepath.Join(root, "src", "test", "IntTest.java"), classify.LayerIntegration),
	}

	records, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	// 400 total / 300 covered split evenly across two layers.
	assert.Equal(t, coverage.Record{Covered: 150, Total: 200}, records[classify.LayerUnit])
	assert.Equal(t, coverage.Record{Covered: 150, Total: 200}, records[classify.LayerIntegration])

	// Existing report short-circuits the Maven build.
	assert.Empty(t, runner.calls)
}

func TestJacocoToolchain_ReusesCoberturaArtifact(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pom.xml"), []byte("<project/>"), 0o600))

	coberturaXML := `<?xml version="1.0"?>
<coverage lines-valid="400" lines-covered="300"/>`

	reportDir := filepath.Join(root, "target", "site", "cobertura")
	require.NoError(t, os.MkdirAll(reportDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, "coverage.xml"), []byte(coberturaXML), 0o600))

	runner := &fakeRunner{}
	tc := coverage.NewJacocoToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		javaFile(filepath.Join(root, "src", "test", "UnitTest.java"), classify.LayerUnit),
		javaFile(filepath.Join(root, "src", "test", "IntTest.java"), classify.LayerIntegration),
	}

	records, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	assert.Equal(t, coverage.Record{Covered: 150, Total: 200}, records[classify.LayerUnit])
	assert.Equal(t, coverage.Record{Covered: 150, Total: 200}, records[classify.LayerIntegration])

	// Existing report short-circuits the Maven build.
	assert.Empty(t, runner.calls)
}

func TestJacocoToolchain_ConfiguredTimeoutReachesRunner(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pom.xml"), []byte("<project/>"), 0o600))

	runner := &fakeRunner{errs: map[string]error{
		"mvn -q": coverage.ErrToolTimeout,
	}}
	tc := coverage.NewJacocoToolchain(runner, coverage.Timeouts{Setup: 3 * time.Minute}, nil)

	files := []classify.ClassifiedFile{
		javaFile(filepath.Join(root, "src", "test", "UnitTest.java"), classify.LayerUnit),
	}

	_, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, 3*time.Minute, runner.calls[0].timeout)
}

func TestJacocoToolchain_NoPomSkips(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	tc := coverage.NewJacocoToolchain(runner, coverage.Timeouts{}, nil)

	records, err := tc.Measure(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, coverage.NewLayerRecords(), records)
	assert.Empty(t, runner.calls)
}

func TestJacocoToolchain_BuildFailureRecordsZero(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pom.xml"), []byte("<project/>"), 0o600))

	runner := &fakeRunner{errs: map[string]error{
		"mvn -q": coverage.ErrToolTimeout,
	}}
	tc := coverage.NewJacocoToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		javaFile(filepath.Join(root, "src", "test", "UnitTest.java"), classify.LayerUnit),
	}

	records, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)
	assert.Equal(t, coverage.NewLayerRecords(), records)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "mvn", runner.calls[0].name)
}
