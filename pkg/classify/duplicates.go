package classify

import "sort"

// occurrence is one (layer, file, line) sighting of a test function name.
type occurrence struct {
	layer Layer
	file  string
	line  int
}

// FindDuplicates reports test function names classified into two or more
// distinct layers. One entry is produced per occurrence, each naming the
// other layers the name appears under. Name reuse across files within the
// same layer is common and is deliberately not reported.
func FindDuplicates(files []ClassifiedFile) []DuplicateEntry {
	byName := make(map[string][]occurrence)

	for _, cf := range files {
		for _, fn := range cf.Functions {
			for _, layer := range cf.Layers {
				byName[fn.Name] = append(byName[fn.Name], occurrence{
					layer: layer,
					file:  fn.File,
					line:  fn.Line,
				})
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}

	sort.Strings(names)

	var entries []DuplicateEntry

	for _, name := range names {
		occs := byName[name]

		layerSet := make(map[Layer]bool)
		for _, occ := range occs {
			layerSet[occ.layer] = true
		}

		if len(layerSet) < 2 {
			continue
		}

		for _, occ := range occs {
			entries = append(entries, DuplicateEntry{
				Name:        name,
				Layer:       occ.layer,
				File:        occ.file,
				Line:        occ.line,
				OtherLayers: otherLayers(layerSet, occ.layer),
			})
		}
	}

	return entries
}

// otherLayers returns the layers in the set except own, in priority order.
func otherLayers(set map[Layer]bool, own Layer) []Layer {
	others := make([]Layer, 0, len(set)-1)

	for _, layer := range AllLayers {
		if layer != own && set[layer] {
			others = append(others, layer)
		}
	}

	return others
}
