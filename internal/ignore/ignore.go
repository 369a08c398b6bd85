// Package ignore implements the ignore predicate (spec.md component C5):
// a path-match filter read from a .dsyncignore file using the gitignore
// pattern language described in spec.md section 6 (anchored '/', trailing
// '/', '*', '**', '?', comments and blank lines skipped).
//
// Modeled on fulmenhq-goneat's pkg/ignore/ignore.go: go-git's own
// gitignore matcher already implements exactly this pattern language, so
// rather than hand-roll a glob matcher this package is a thin adapter
// over it.
package ignore

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// builtinPatterns are always implicitly included per spec.md section 6:
// "A pattern matching .dsync* is always implicitly included."
var builtinPatterns = []string{".dsync*"}

// Matcher is the opaque is_ignored(path) predicate described in spec.md
// section 1 and 6, given a concrete implementation here.
type Matcher struct {
	matcher gitignore.Matcher
}

// Load reads patterns from the .dsyncignore file at root (if present)
// plus the always-on built-in patterns, and returns a Matcher. A missing
// ignore file is not an error: only the built-ins apply.
func Load(root string) (*Matcher, error) {
	fs := osfs.New(root)

	var patterns []gitignore.Pattern

	for _, p := range builtinPatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	filePatterns, err := readIgnoreFile(fs, ".dsyncignore")
	if err != nil {
		return nil, err
	}

	patterns = append(patterns, filePatterns...)

	return &Matcher{matcher: gitignore.NewMatcher(patterns)}, nil
}

// NewFromLines builds a Matcher directly from ignore-file lines, without
// touching the filesystem. Useful for tests and for callers that already
// hold the file contents.
func NewFromLines(lines []string) *Matcher {
	var patterns []gitignore.Pattern

	for _, p := range builtinPatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	patterns = append(patterns, parseLines(lines)...)

	return &Matcher{matcher: gitignore.NewMatcher(patterns)}
}

func readIgnoreFile(fs billy.Filesystem, name string) ([]gitignore.Pattern, error) {
	f, err := fs.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return parseLines(strings.Split(string(data), "\n")), nil
}

// parseLines turns raw ignore-file lines into patterns, skipping blank
// lines and comments (spec.md section 6).
func parseLines(lines []string) []gitignore.Pattern {
	var patterns []gitignore.Pattern

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" || strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}

		patterns = append(patterns, gitignore.ParsePattern(trimmed, nil))
	}

	return patterns
}

// IsIgnored reports whether relPath (relative to the repo root, '/'-
// separated) should be excluded from sync. isDir selects directory-vs-
// file matching semantics (a pattern with a trailing '/' only matches
// directories).
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	parts := splitPath(relPath)
	if len(parts) == 0 {
		return false
	}

	return m.matcher.Match(parts, isDir)
}

func splitPath(relPath string) []string {
	relPath = filepath.ToSlash(strings.TrimPrefix(relPath, "/"))
	if relPath == "" || relPath == "." {
		return nil
	}

	raw := strings.Split(relPath, "/")
	parts := make([]string, 0, len(raw))

	for _, p := range raw {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}

	return parts
}
