package coverage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerlens/layerlens/pkg/coverage"
)

func TestTabularParser_TotalRow(t *testing.T) {
	t.Parallel()

	report := []byte(`Name                 Stmts   Miss  Cover
----------------------------------------
app/models.py           80     10    88%
tests/test_models.py    40      0   100%
----------------------------------------
TOTAL                  120     10    92%
`)

	total, covered, err := (coverage.TabularParser{}).Parse(report)
	require.NoError(t, err)
	assert.Equal(t, 120, total)
	assert.Equal(t, 110, covered)
}

func TestTabularParser_NoTotalRow(t *testing.T) {
	t.Parallel()

	_, _, err := (coverage.TabularParser{}).Parse([]byte("Name Stmts Miss Cover\n"))
	require.ErrorIs(t, err, coverage.ErrNoTotalRow)
}

func TestTabularParser_MalformedCounts(t *testing.T) {
	t.Parallel()

	_, _, err := (coverage.TabularParser{}).Parse([]byte("TOTAL abc def 92%\n"))
	require.ErrorIs(t, err, coverage.ErrMalformedTable)
}

func TestTabularParser_MissExceedsStmts(t *testing.T) {
	t.Parallel()

	_, _, err := (coverage.TabularParser{}).Parse([]byte("TOTAL 10 20 0%\n"))
	require.ErrorIs(t, err, coverage.ErrMalformedTable)
}

func TestIstanbulSummaryParser(t *testing.T) {
	t.Parallel()

	summary := []byte(`{"total": {"lines": {"total": 200, "covered": 150, "pct": 75}}}`)

	total, covered, err := (coverage.IstanbulSummaryParser{}).Parse(summary)
	require.NoError(t, err)
	assert.Equal(t, 200, total)
	assert.Equal(t, 150, covered)
}

func TestIstanbulSummaryParser_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := (coverage.IstanbulSummaryParser{}).Parse([]byte("not json"))
	require.Error(t, err)
}

func TestCoberturaParser(t *testing.T) {
	t.Parallel()

	doc := []byte(`<?xml version="1.0"?>
<coverage lines-valid="500" lines-covered="425" line-rate="0.85"></coverage>`)

	total, covered, err := (coverage.CoberturaParser{}).Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, 500, total)
	assert.Equal(t, 425, covered)
}

func TestCoberturaParser_NoCounters(t *testing.T) {
	t.Parallel()

	_, _, err := (coverage.CoberturaParser{}).Parse([]byte(`<coverage></coverage>`))
	require.ErrorIs(t, err, coverage.ErrNoLineCounters)
}

func TestJacocoParser(t *testing.T) {
	t.Parallel()

	doc := []byte(`<?xml version="1.0"?>
<report name="demo">
  <counter type="INSTRUCTION" missed="100" covered="900"/>
  <counter type="LINE" missed="30" covered="270"/>
  <counter type="METHOD" missed="5" covered="45"/>
</report>`)

	total, covered, err := (coverage.JacocoParser{}).Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, 300, total)
	assert.Equal(t, 270, covered)
}

func TestJacocoParser_NoLineCounter(t *testing.T) {
	t.Parallel()

	doc := []byte(`<report><counter type="METHOD" missed="1" covered="2"/></report>`)

	_, _, err := (coverage.JacocoParser{}).Parse(doc)
	require.ErrorIs(t, err, coverage.ErrNoLineCounters)
}

func TestRecord_Percent(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, coverage.Record{}.Percent(), 0.001)
	assert.InDelta(t, 50.0, coverage.Record{Covered: 1, Total: 2}.Percent(), 0.001)
	assert.InDelta(t, 100.0, coverage.Record{Covered: 300, Total: 200}.Percent(), 0.001)
}

func TestLayerRecords_Merge(t *testing.T) {
	t.Parallel()

	a := coverage.NewLayerRecords()
	a["unit"] = coverage.Record{Covered: 10, Total: 20}

	b := coverage.NewLayerRecords()
	b["unit"] = coverage.Record{Covered: 5, Total: 10}
	b["e2e"] = coverage.Record{Covered: 1, Total: 2}

	a.Merge(b)

	assert.Equal(t, coverage.Record{Covered: 15, Total: 30}, a["unit"])
	assert.Equal(t, coverage.Record{Covered: 1, Total: 2}, a["e2e"])
}
