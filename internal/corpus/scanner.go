// Package corpus turns a project tree into the ordered list of line-bounded
// chunks that the vector index is built from.
package corpus

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// defaultIncludeExts are the file types indexed by default.
var defaultIncludeExts = map[string]bool{
	".go":     true,
	".py":     true,
	".md":     true,
	".txt":    true,
	".html":   true,
	".jinja":  true,
	".jinja2": true,
	".sql":    true,
	".ini":    true,
	".cfg":    true,
	".yaml":   true,
	".yml":    true,
	".json":   true,
}

// defaultExcludeDirs are pruned during traversal. Matching is a substring
// check against the slash-normalized path relative to the scan root, so an
// entry like "instance/ai" also excludes nested artifact directories.
var defaultExcludeDirs = []string{
	".git",
	"venv",
	"__pycache__",
	"node_modules",
	".pytest_cache",
	".vscode",
	"instance/ai",
	"instance/ai_user",
}

// DefaultExcludeDirs returns a copy of the default exclusion list, for
// callers that extend it rather than replace it.
func DefaultExcludeDirs() []string {
	out := make([]string, len(defaultExcludeDirs))
	copy(out, defaultExcludeDirs)
	return out
}

// Scanner walks a project tree and selects indexable documents.
type Scanner struct {
	includeExts map[string]bool
	excludeDirs []string
}

// NewScanner creates a Scanner. Empty slices select the defaults.
func NewScanner(includeExts []string, excludeDirs []string) *Scanner {
	extMap := make(map[string]bool, len(includeExts))
	if len(includeExts) > 0 {
		for _, ext := range includeExts {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		for k, v := range defaultIncludeExts {
			extMap[k] = v
		}
	}

	excludes := excludeDirs
	if len(excludes) == 0 {
		excludes = append([]string(nil), defaultExcludeDirs...)
	}

	return &Scanner{includeExts: extMap, excludeDirs: excludes}
}

// Scan returns the sorted slash-relative paths of all indexable documents
// under root. Excluded subtrees are pruned during traversal rather than
// filtered afterwards, so the walk never descends into them.
func (s *Scanner) Scan(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving scan root: %w", err)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if s.excluded(rel) {
				return fs.SkipDir
			}
			return nil
		}

		if s.excluded(rel) {
			return nil
		}
		if s.includeExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func (s *Scanner) excluded(rel string) bool {
	for _, ex := range s.excludeDirs {
		if strings.Contains(rel, ex) {
			return true
		}
	}
	return false
}
