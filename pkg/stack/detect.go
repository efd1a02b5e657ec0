// Package stack detects the ecosystems and frameworks present in a
// repository. Detection is independent of test classification and is used
// to select coverage toolchains.
package stack

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/src-d/enry/v2"
)

// Ecosystem labels.
const (
	EcosystemPython     = "Python"
	EcosystemJavaScript = "JavaScript"
	EcosystemTypeScript = "TypeScript"
	EcosystemJava       = "Java"
	EcosystemKotlin     = "Kotlin"
	EcosystemCSharp     = "C#"
	EcosystemRuby       = "Ruby"
	EcosystemGo         = "Go"
	EcosystemPHP        = "PHP"
	EcosystemRust       = "Rust"
)

// Framework labels layered on an ecosystem.
const (
	FrameworkFlask  = "Flask"
	FrameworkDjango = "Django"
)

// Stack is an ecosystem label plus an optional framework detected on it.
type Stack struct {
	Ecosystem string `json:"ecosystem"`
	Framework string `json:"framework,omitempty"`
}

// String renders "Ecosystem" or "Ecosystem/Framework".
func (s Stack) String() string {
	if s.Framework == "" {
		return s.Ecosystem
	}

	return s.Ecosystem + "/" + s.Framework
}

var (
	flaskImport  = regexp.MustCompile(`(?m)^\s*(?:from|import)\s+flask`)
	djangoImport = regexp.MustCompile(`(?m)^\s*(?:from|import)\s+django`)
)

// languageEcosystems maps enry language names to coverage-relevant
// ecosystem labels.
var languageEcosystems = map[string]string{
	"Python":     EcosystemPython,
	"JavaScript": EcosystemJavaScript,
	"TypeScript": EcosystemTypeScript,
	"JSX":        EcosystemJavaScript,
	"TSX":        EcosystemTypeScript,
	"Java":       EcosystemJava,
	"Kotlin":     EcosystemKotlin,
	"C#":         EcosystemCSharp,
	"Ruby":       EcosystemRuby,
	"Go":         EcosystemGo,
	"PHP":        EcosystemPHP,
	"Rust":       EcosystemRust,
}

// contentSampleSize bounds how much of each file is read for language and
// framework detection.
const contentSampleSize = 16 << 10 // 16 KiB.

// Detector scans repositories for their technology stacks.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a stack detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{logger: logger}
}

// Detect returns the set of stacks present under root, sorted by label.
// Multiple labels may coexist. Detection failures on individual files are
// logged and skipped.
func (d *Detector) Detect(root string) ([]Stack, error) {
	found := make(map[Stack]bool)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		name := entry.Name()

		if entry.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}

			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && enry.IsVendor(filepath.ToSlash(rel)) {
			return nil
		}

		d.inspect(path, name, found)

		return nil
	})
	if err != nil {
		return nil, err
	}

	stacks := make([]Stack, 0, len(found))
	for st := range found {
		stacks = append(stacks, st)
	}

	sort.Slice(stacks, func(i, j int) bool {
		return stacks[i].String() < stacks[j].String()
	})

	return stacks, nil
}

// inspect records the ecosystem of one file, plus any framework markers
// found in its content.
func (d *Detector) inspect(path, name string, found map[Stack]bool) {
	content := d.sample(path)

	lang := enry.GetLanguage(name, content)

	eco, ok := languageEcosystems[lang]
	if !ok {
		return
	}

	found[Stack{Ecosystem: eco}] = true

	if eco == EcosystemPython && len(content) > 0 {
		switch {
		case flaskImport.Match(content):
			found[Stack{Ecosystem: eco, Framework: FrameworkFlask}] = true
		case djangoImport.Match(content):
			found[Stack{Ecosystem: eco, Framework: FrameworkDjango}] = true
		}
	}
}

// sample reads up to contentSampleSize bytes of the file; a read failure
// yields an empty sample, which enry can still classify by filename.
func (d *Detector) sample(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	buf := make([]byte, contentSampleSize)

	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil
	}

	return buf[:n]
}
