package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerlens/layerlens/pkg/classify"
)

func classified(path string, layer classify.Layer, names ...string) classify.ClassifiedFile {
	cf := classify.ClassifiedFile{
		File:   classify.SourceFile{Path: path},
		Layers: []classify.Layer{layer},
	}

	for i, name := range names {
		cf.Functions = append(cf.Functions, classify.TestFunction{
			Name: name,
			File: path,
			Line: i + 1,
		})
	}

	return cf
}

func TestFindDuplicates_CrossLayerNameReported(t *testing.T) {
	t.Parallel()

	files := []classify.ClassifiedFile{
		classified("/repo/tests/unit/test_login.py", classify.LayerUnit, "test_login"),
		classified("/repo/tests/e2e/test_login.py", classify.LayerE2E, "test_login"),
	}

	entries := classify.FindDuplicates(files)

	require.Len(t, entries, 2)

	for _, entry := range entries {
		assert.Equal(t, "test_login", entry.Name)
		require.Len(t, entry.OtherLayers, 1)
		assert.NotEqual(t, entry.Layer, entry.OtherLayers[0])
	}
}

func TestFindDuplicates_SameLayerReuseIgnored(t *testing.T) {
	t.Parallel()

	files := []classify.ClassifiedFile{
		classified("/repo/a_test.py", classify.LayerUnit, "test_save"),
		classified("/repo/b_test.py", classify.LayerUnit, "test_save"),
	}

	assert.Empty(t, classify.FindDuplicates(files))
}

func TestFindDuplicates_ThreeLayers(t *testing.T) {
	t.Parallel()

	files := []classify.ClassifiedFile{
		classified("/repo/unit.py", classify.LayerUnit, "test_flow"),
		classified("/repo/int.py", classify.LayerIntegration, "test_flow"),
		classified("/repo/e2e.py", classify.LayerE2E, "test_flow"),
	}

	entries := classify.FindDuplicates(files)

	require.Len(t, entries, 3)

	for _, entry := range entries {
		assert.Len(t, entry.OtherLayers, 2)
	}
}

func TestFindDuplicates_SortedByName(t *testing.T) {
	t.Parallel()

	files := []classify.ClassifiedFile{
		classified("/repo/u.py", classify.LayerUnit, "test_zeta", "test_alpha"),
		classified("/repo/i.py", classify.LayerIntegration, "test_zeta", "test_alpha"),
	}

	entries := classify.FindDuplicates(files)

	require.Len(t, entries, 4)
	assert.Equal(t, "test_alpha", entries[0].Name)
	assert.Equal(t, "test_zeta", entries[2].Name)
}

func TestFindDuplicates_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, classify.FindDuplicates(nil))
}
