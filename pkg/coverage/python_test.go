package coverage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/coverage"
)

// call is one recorded external command invocation.
type call struct {
	dir     string
	name    string
	args    []string
	timeout time.Duration
}

// fakeRunner replays canned responses per command name and records calls.
type fakeRunner struct {
	calls     []call
	responses map[string][]byte
	errs      map[string]error
}

func (f *fakeRunner) Run(
	_ context.Context, dir string, timeout time.Duration, name string, args ...string,
) ([]byte, error) {
	f.calls = append(f.calls, call{dir: dir, name: name, args: args, timeout: timeout})

	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}

	if err, ok := f.errs[key]; ok {
		return nil, err
	}

	return f.responses[key], nil
}

func pyFile(path string, layer classify.Layer) classify.ClassifiedFile {
	return classify.ClassifiedFile{
		File:   classify.SourceFile{Path: path, Ext: ".py"},
		Layers: []classify.Layer{layer},
		Functions: []classify.TestFunction{
			{Name: "test_x", File: path, Line: 1},
		},
	}
}

const pytestReport = "Name Stmts Miss Cover\nTOTAL 100 25 75%\n"

func TestPytestToolchain_MeasureSingleLayer(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{responses: map[string][]byte{
		"coverage report": []byte(pytestReport),
	}}

	tc := coverage.NewPytestToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		pyFile(filepath.Join(root, "tests", "test_a.py"), classify.LayerUnit),
	}

	records, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	assert.Equal(t, coverage.Record{Covered: 75, Total: 100}, records[classify.LayerUnit])
	assert.Equal(t, coverage.Record{}, records[classify.LayerIntegration])
	assert.Equal(t, coverage.Record{}, records[classify.LayerE2E])

	// One run + one report for the only populated layer.
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "coverage", runner.calls[0].name)
	assert.Equal(t, "run", runner.calls[0].args[0])
	assert.Equal(t, "report", runner.calls[1].args[0])
}

func TestPytestToolchain_ConfiguredTimeoutsReachRunner(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{responses: map[string][]byte{
		"coverage report": []byte(pytestReport),
	}}

	tc := coverage.NewPytestToolchain(runner, coverage.Timeouts{
		Test:   42 * time.Second,
		Report: 7 * time.Second,
	}, nil)

	files := []classify.ClassifiedFile{
		pyFile(filepath.Join(root, "test_a.py"), classify.LayerUnit),
	}

	_, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, 42*time.Second, runner.calls[0].timeout)
	assert.Equal(t, 7*time.Second, runner.calls[1].timeout)
}

func TestPytestToolchain_ZeroTimeoutsUseDefaults(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{responses: map[string][]byte{
		"coverage report": []byte(pytestReport),
	}}

	tc := coverage.NewPytestToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		pyFile(filepath.Join(root, "test_a.py"), classify.LayerUnit),
	}

	_, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, coverage.DefaultTestTimeout, runner.calls[0].timeout)
	assert.Equal(t, coverage.DefaultReportTimeout, runner.calls[1].timeout)
}

func TestPytestToolchain_ScopedConfigOmitsOtherLayers(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	var captured string

	runner := &fakeRunner{responses: map[string][]byte{
		"coverage report": []byte(pytestReport),
	}}

	tc := coverage.NewPytestToolchain(&captureRunner{inner: runner, root: root, captured: &captured}, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		pyFile(filepath.Join(root, "tests", "unit", "test_u.py"), classify.LayerUnit),
		pyFile(filepath.Join(root, "tests", "e2e", "test_e.py"), classify.LayerE2E),
	}

	_, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	// The e2e pass (first in priority order) must omit the unit file.
	assert.Contains(t, captured, "tests/unit/test_u.py")
}

// captureRunner reads the scoped rcfile contents before delegating, since the
// toolchain deletes it after each pass.
type captureRunner struct {
	inner    *fakeRunner
	root     string
	captured *string
}

func (c *captureRunner) Run(
	ctx context.Context, dir string, timeout time.Duration, name string, args ...string,
) ([]byte, error) {
	if *c.captured == "" {
		for _, arg := range args {
			if strings.HasPrefix(arg, "--rcfile=") {
				raw, err := os.ReadFile(strings.TrimPrefix(arg, "--rcfile="))
				if err == nil {
					*c.captured = string(raw)
				}
			}
		}
	}

	return c.inner.Run(ctx, dir, timeout, name, args...)
}

func TestPytestToolchain_CleansUpScopedConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{responses: map[string][]byte{
		"coverage report": []byte(pytestReport),
	}}

	tc := coverage.NewPytestToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		pyFile(filepath.Join(root, "test_a.py"), classify.LayerUnit),
	}

	_, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(root, ".layerlens-coveragerc-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPytestToolchain_FailedPassRecordsZero(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{errs: map[string]error{
		"coverage run": coverage.ErrToolTimeout,
	}}

	tc := coverage.NewPytestToolchain(runner, coverage.Timeouts{}, nil)

	files := []classify.ClassifiedFile{
		pyFile(filepath.Join(root, "test_a.py"), classify.LayerUnit),
	}

	records, err := tc.Measure(context.Background(), root, files)
	require.NoError(t, err)
	assert.Equal(t, coverage.Record{}, records[classify.LayerUnit])
}

func TestPytestToolchain_NoPythonFiles(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	tc := coverage.NewPytestToolchain(runner, coverage.Timeouts{}, nil)

	records, err := tc.Measure(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, coverage.NewLayerRecords(), records)
	assert.Empty(t, runner.calls)
}
