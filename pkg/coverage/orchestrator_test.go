package coverage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerlens/layerlens/pkg/classify"
	"github.com/layerlens/layerlens/pkg/coverage"
	"github.com/layerlens/layerlens/pkg/stack"
)

var errBoom = errors.New("boom")

// stubToolchain supports one ecosystem and returns fixed records or an error.
type stubToolchain struct {
	name      string
	ecosystem string
	records   coverage.LayerRecords
	err       error
}

func (s *stubToolchain) Name() string { return s.name }

func (s *stubToolchain) Supports(st stack.Stack) bool {
	return st.Ecosystem == s.ecosystem
}

func (s *stubToolchain) Measure(
	context.Context, string, []classify.ClassifiedFile,
) (coverage.LayerRecords, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.records, nil
}

func unitRecords(covered, total int) coverage.LayerRecords {
	lr := coverage.NewLayerRecords()
	lr[classify.LayerUnit] = coverage.Record{Covered: covered, Total: total}

	return lr
}

func TestOrchestrator_Run_MergesSelectedToolchains(t *testing.T) {
	t.Parallel()

	py := &stubToolchain{name: "py", ecosystem: stack.EcosystemPython, records: unitRecords(10, 20)}
	js := &stubToolchain{name: "js", ecosystem: stack.EcosystemJavaScript, records: unitRecords(5, 10)}

	o := coverage.NewOrchestrator([]coverage.Toolchain{py, js}, 0, nil)

	stacks := []stack.Stack{
		{Ecosystem: stack.EcosystemPython},
		{Ecosystem: stack.EcosystemJavaScript},
	}

	records := o.Run(context.Background(), "/repo", nil, stacks)

	assert.Equal(t, coverage.Record{Covered: 15, Total: 30}, records[classify.LayerUnit])
}

func TestOrchestrator_Run_AbsorbsToolchainFailure(t *testing.T) {
	t.Parallel()

	bad := &stubToolchain{name: "bad", ecosystem: stack.EcosystemPython, err: errBoom}
	good := &stubToolchain{name: "good", ecosystem: stack.EcosystemJavaScript, records: unitRecords(7, 14)}

	o := coverage.NewOrchestrator([]coverage.Toolchain{bad, good}, 0, nil)

	stacks := []stack.Stack{
		{Ecosystem: stack.EcosystemPython},
		{Ecosystem: stack.EcosystemJavaScript},
	}

	records := o.Run(context.Background(), "/repo", nil, stacks)

	assert.Equal(t, coverage.Record{Covered: 7, Total: 14}, records[classify.LayerUnit])
}

func TestOrchestrator_Run_NoMatchingToolchain(t *testing.T) {
	t.Parallel()

	py := &stubToolchain{name: "py", ecosystem: stack.EcosystemPython}

	o := coverage.NewOrchestrator([]coverage.Toolchain{py}, 0, nil)

	records := o.Run(context.Background(), "/repo", nil, []stack.Stack{{Ecosystem: stack.EcosystemRust}})

	require.Len(t, records, len(classify.AllLayers))

	for _, layer := range classify.AllLayers {
		assert.Equal(t, coverage.Record{}, records[layer])
	}
}

func TestOrchestrator_Run_ToolchainSelectedOnce(t *testing.T) {
	t.Parallel()

	js := &stubToolchain{name: "js", ecosystem: stack.EcosystemJavaScript, records: unitRecords(3, 6)}

	o := coverage.NewOrchestrator([]coverage.Toolchain{js}, 0, nil)

	// Both JS stacks map to the same toolchain; it must contribute once.
	stacks := []stack.Stack{
		{Ecosystem: stack.EcosystemJavaScript},
		{Ecosystem: stack.EcosystemJavaScript, Framework: "React"},
	}

	records := o.Run(context.Background(), "/repo", nil, stacks)

	assert.Equal(t, coverage.Record{Covered: 3, Total: 6}, records[classify.LayerUnit])
}
