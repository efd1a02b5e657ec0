// Package classify assigns test files to layers (unit, integration, e2e)
// using ordered pattern rule sets and extracts per-function test identifiers.
package classify

// Layer is the classification bucket for a test.
type Layer string

// Known layers, from most specific to least specific attribution priority.
const (
	LayerE2E         Layer = "e2e"
	LayerIntegration Layer = "integration"
	LayerUnit        Layer = "unit"
)

// AllLayers lists every layer in priority order (e2e > integration > unit).
var AllLayers = []Layer{LayerE2E, LayerIntegration, LayerUnit}

// Valid reports whether l is a recognized layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerE2E, LayerIntegration, LayerUnit:
		return true
	}

	return false
}

// SourceFile is a candidate file read once and shared read-only by all
// analyses that inspect it.
type SourceFile struct {
	// Path is the absolute path of the file.
	Path string `json:"path"`

	// Ext is the file extension including the leading dot.
	Ext string `json:"ext"`

	// Content is the raw file content.
	Content []byte `json:"-"`
}

// TestFunction is a single identified test case within a file.
// Immutable once extracted.
type TestFunction struct {
	// Name is the identifier extracted from a test-declaration pattern.
	Name string `json:"name"`

	// File is the path of the file declaring the function.
	File string `json:"file"`

	// Line is the 1-based source line of the declaration.
	Line int `json:"line"`
}

// ClassifiedFile is a source file together with the layers it was assigned
// to and the test functions found in it.
type ClassifiedFile struct {
	File      SourceFile     `json:"file"`
	Layers    []Layer        `json:"layers"`
	Functions []TestFunction `json:"functions"`
}

// HasLayer reports whether the file was assigned to the given layer.
func (cf ClassifiedFile) HasLayer(layer Layer) bool {
	for _, l := range cf.Layers {
		if l == layer {
			return true
		}
	}

	return false
}

// DuplicateEntry records one occurrence of a test function name that was
// classified into two or more distinct layers.
type DuplicateEntry struct {
	// Name is the duplicated test function name.
	Name string `json:"name"`

	// Layer is the layer of this occurrence.
	Layer Layer `json:"layer"`

	// File and Line locate this occurrence.
	File string `json:"file"`
	Line int    `json:"line"`

	// OtherLayers is the set of layers the name also appears under,
	// excluding this occurrence's own layer.
	OtherLayers []Layer `json:"other_layers"`
}
