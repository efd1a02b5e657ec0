// Package discovery walks a repository tree and selects candidate test files
// by extension, exclusion filters, and content heuristics.
package discovery

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/src-d/enry/v2"

	"github.com/layerlens/layerlens/pkg/classify"
)

// ErrInvalidRoot indicates the repository root does not exist or is not a
// directory. This is the only discovery failure that terminates a run.
var ErrInvalidRoot = errors.New("repository root is not a readable directory")

// TestMatcher flags a candidate file as a test file. Implemented by
// [classify.Engine]: a file is a test file if any pattern from any layer
// matches its path or content.
type TestMatcher interface {
	MatchesAny(path string, content []byte) bool
}

// sourceExtensions is the allow-list of extensions with known test idioms.
var sourceExtensions = map[string]bool{
	".py":    true,
	".js":    true,
	".jsx":   true,
	".ts":    true,
	".tsx":   true,
	".kt":    true,
	".java":  true,
	".cs":    true,
	".rb":    true,
	".go":    true,
	".php":   true,
	".rs":    true,
	".dart":  true,
	".scala": true,
}

// deniedNames is the fixed deny-list of build, metadata and lockfiles that
// are never test candidates regardless of extension.
var deniedNames = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"go.mod":            true,
	"go.sum":            true,
	"pom.xml":           true,
	"build.gradle":      true,
	"gemfile":           true,
	"gemfile.lock":      true,
	"pipfile":           true,
	"pipfile.lock":      true,
	"requirements.txt":  true,
	"setup.py":          true,
	"conftest.py":       true,
	"webpack.config.js": true,
	"babel.config.js":   true,
	"jest.config.js":    true,
	"karma.conf.js":     true,
	"gulpfile.js":       true,
	"gruntfile.js":      true,
}

// skippedDirs are directory names never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
}

// maxFileSize bounds how much of a candidate file is read. Larger files are
// treated as non-test and skipped.
const maxFileSize = 1 << 20 // 1 MiB.

// Scanner discovers test files under a repository root.
type Scanner struct {
	matcher      TestMatcher
	excludeGlobs []string
	logger       *slog.Logger
}

// NewScanner creates a scanner. excludeGlobs are optional doublestar patterns
// (e.g. "docs/**") matched against repository-relative paths.
func NewScanner(matcher TestMatcher, excludeGlobs []string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{matcher: matcher, excludeGlobs: excludeGlobs, logger: logger}
}

// Scan walks the tree under root and returns every candidate flagged as a
// test file, content loaded. Unreadable or undecodable files are logged and
// skipped, never fatal. Ordering follows directory traversal order and is
// stable for an unchanged filesystem state.
func (s *Scanner) Scan(root string) ([]classify.SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, ErrInvalidRoot
	}

	var files []classify.SourceFile

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable path", "path", path, "error", err)

			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		name := entry.Name()

		if entry.IsDir() {
			if path != root && (skippedDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}

			return nil
		}

		if !s.isCandidate(root, path, name) {
			return nil
		}

		content, ok := s.readContent(path)
		if !ok {
			return nil
		}

		if s.matcher != nil && !s.matcher.MatchesAny(path, content) {
			return nil
		}

		files = append(files, classify.SourceFile{
			Path:    path,
			Ext:     strings.ToLower(filepath.Ext(path)),
			Content: content,
		})

		return nil
	})
	if walkErr != nil {
		return nil, ErrInvalidRoot
	}

	return files, nil
}

// isCandidate applies the extension allow-list, the deny-list, hidden-file
// and vendor-path exclusion, and user exclusion globs.
func (s *Scanner) isCandidate(root, path, name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}

	if deniedNames[strings.ToLower(name)] {
		return false
	}

	if !sourceExtensions[strings.ToLower(filepath.Ext(name))] {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	rel = filepath.ToSlash(rel)

	if enry.IsVendor(rel) {
		return false
	}

	for _, glob := range s.excludeGlobs {
		if matched, _ := doublestar.Match(glob, rel); matched {
			return false
		}
	}

	return true
}

// readContent reads at most maxFileSize bytes and rejects binary or invalid
// UTF-8 content. Failures are logged and treated as non-test.
func (s *Scanner) readContent(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxFileSize {
		s.logger.Debug("skipping file", "path", path, "reason", "unreadable or too large")

		return nil, false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("failed to read candidate", "path", path, "error", err)

		return nil, false
	}

	if !utf8.Valid(content) {
		s.logger.Debug("skipping file", "path", path, "reason", "not valid utf-8")

		return nil, false
	}

	return content, true
}
