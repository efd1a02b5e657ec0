package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
)

// Engine applies a compiled rule set to source files. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	rules  *RuleSet
	layers map[Layer]compiledLayer
	decls  []compiledDecl
	logger *slog.Logger
}

type compiledLayer struct {
	identity    []*regexp.Regexp
	pathMarkers []*regexp.Regexp
}

type compiledDecl struct {
	family  string
	pattern *regexp.Regexp
}

// NewEngine compiles the given rule set. A nil rule set uses the defaults.
func NewEngine(rules *RuleSet, logger *slog.Logger) (*Engine, error) {
	if rules == nil {
		rules = DefaultRuleSet()
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		rules:  rules,
		layers: make(map[Layer]compiledLayer, len(rules.Layers)),
		logger: logger,
	}

	for layer, lr := range rules.Layers {
		cl := compiledLayer{}

		for _, pat := range lr.Identity {
			re, err := compileInsensitive(pat)
			if err != nil {
				return nil, fmt.Errorf("layer %s identity pattern %q: %w", layer, pat, err)
			}

			cl.identity = append(cl.identity, re)
		}

		for _, pat := range lr.PathMarkers {
			re, err := compileInsensitive(pat)
			if err != nil {
				return nil, fmt.Errorf("layer %s path pattern %q: %w", layer, pat, err)
			}

			cl.pathMarkers = append(cl.pathMarkers, re)
		}

		eng.layers[layer] = cl
	}

	for _, decl := range rules.Declarations {
		re, err := regexp.Compile(decl.Pattern)
		if err != nil {
			return nil, fmt.Errorf("declaration pattern %q: %w", decl.Pattern, err)
		}

		eng.decls = append(eng.decls, compiledDecl{family: decl.Family, pattern: re})
	}

	return eng, nil
}

// Version returns the version of the rule set the engine was built from.
func (e *Engine) Version() string {
	return e.rules.Version
}

// MatchesAny reports whether any pattern from any layer matches the file's
// path or content. Discovery uses this to flag test files.
func (e *Engine) MatchesAny(path string, content []byte) bool {
	for _, cl := range e.layers {
		if matchLayer(cl, path, content) {
			return true
		}
	}

	for _, decl := range e.decls {
		if decl.pattern.Match(content) {
			return true
		}
	}

	return false
}

// Classify assigns the file to its layers and extracts its test functions.
// A file matching no identity signal and declaring no test functions yields
// an empty classification. Classifying the same unchanged file twice yields
// identical results.
func (e *Engine) Classify(file SourceFile) ClassifiedFile {
	matched := make(map[Layer]bool, len(e.layers))

	for layer, cl := range e.layers {
		if matchLayer(cl, file.Path, file.Content) {
			matched[layer] = true
		}
	}

	functions := e.extractFunctions(file)

	// Attribution priority: e2e signals dominate integration, integration
	// dominates unit. Functions in a file with no integration or e2e signal
	// all belong to unit.
	var layers []Layer

	switch {
	case matched[LayerE2E]:
		layers = []Layer{LayerE2E}
	case matched[LayerIntegration]:
		layers = []Layer{LayerIntegration}
	case matched[LayerUnit] || len(functions) > 0:
		layers = []Layer{LayerUnit}
	default:
		// Not a test file.
		return ClassifiedFile{File: file}
	}

	return ClassifiedFile{File: file, Layers: layers, Functions: functions}
}

// extractFunctions finds every test-declaration match in the file, reporting
// the declared name and its 1-based line number in declaration order.
func (e *Engine) extractFunctions(file SourceFile) []TestFunction {
	var functions []TestFunction

	seen := make(map[string]bool)

	for _, decl := range e.decls {
		for _, match := range decl.pattern.FindAllSubmatchIndex(file.Content, -1) {
			if len(match) < 4 || match[2] < 0 {
				continue
			}

			name := string(file.Content[match[2]:match[3]])
			if name == "" {
				continue
			}

			// The same declaration can be hit by more than one family
			// pattern; keep the first.
			key := fmt.Sprintf("%s:%d", name, match[0])
			if seen[key] {
				continue
			}

			seen[key] = true

			functions = append(functions, TestFunction{
				Name: name,
				File: file.Path,
				Line: lineOfOffset(file.Content, match[0]),
			})
		}
	}

	sort.SliceStable(functions, func(i, j int) bool {
		return functions[i].Line < functions[j].Line
	})

	return functions
}

func matchLayer(cl compiledLayer, path string, content []byte) bool {
	for _, re := range cl.identity {
		if re.Match(content) {
			return true
		}
	}

	for _, re := range cl.pathMarkers {
		if re.MatchString(path) || re.Match(content) {
			return true
		}
	}

	return false
}

// lineOfOffset converts a byte offset into a 1-based line number.
func lineOfOffset(content []byte, offset int) int {
	line := 1

	for i := 0; i < offset && i < len(content); i++ {
		if content[i] == '\n' {
			line++
		}
	}

	return line
}

func compileInsensitive(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
