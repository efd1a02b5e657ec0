// Package coverage orchestrates external coverage toolchains per detected
// ecosystem and maps their output onto test layers.
package coverage

import (
	"encoding/json"

	"github.com/layerlens/layerlens/pkg/classify"
)

// Record holds per-layer line coverage. The percentage is always derived
// from Covered and Total, never stored independently.
type Record struct {
	// Covered is the number of covered lines.
	Covered int

	// Total is the number of measurable lines.
	Total int
}

// Percent returns covered/total*100 clamped to [0,100], and 0 when the
// total is 0.
func (r Record) Percent() float64 {
	if r.Total <= 0 {
		return 0
	}

	pct := float64(r.Covered) / float64(r.Total) * 100

	if pct < 0 {
		return 0
	}

	if pct > 100 {
		return 100
	}

	return pct
}

// Add accumulates another record into this one.
func (r Record) Add(other Record) Record {
	return Record{Covered: r.Covered + other.Covered, Total: r.Total + other.Total}
}

// MarshalJSON emits covered, total, and the derived percentage.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Covered    int     `json:"covered"`
		Total      int     `json:"total"`
		Percentage float64 `json:"percentage"`
	}{
		Covered:    r.Covered,
		Total:      r.Total,
		Percentage: r.Percent(),
	})
}

// LayerRecords maps every known layer to a record, defaulting to zero.
type LayerRecords map[classify.Layer]Record

// NewLayerRecords returns a record map with all layers present and zeroed.
func NewLayerRecords() LayerRecords {
	lr := make(LayerRecords, len(classify.AllLayers))
	for _, layer := range classify.AllLayers {
		lr[layer] = Record{}
	}

	return lr
}

// Merge accumulates other into lr layer by layer.
func (lr LayerRecords) Merge(other LayerRecords) {
	for layer, rec := range other {
		lr[layer] = lr[layer].Add(rec)
	}
}
